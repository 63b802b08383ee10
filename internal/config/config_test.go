package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		old, had := os.LookupEnv(k)
		require.NoError(t, os.Setenv(k, v))
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(k, old)
			} else {
				_ = os.Unsetenv(k)
			}
		})
	}
	fn()
}

func TestLoad_missingPasswordFailsFast(t *testing.T) {
	withEnv(t, map[string]string{
		"DATABASE_URL":      "postgres://localhost/test",
		"POSTGRES_PASSWORD": "",
	}, func() {
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "POSTGRES_PASSWORD")
	})
}

func TestLoad_defaults(t *testing.T) {
	withEnv(t, map[string]string{
		"DATABASE_URL":      "postgres://localhost/test",
		"POSTGRES_PASSWORD": "secret",
	}, func() {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 384, cfg.EmbeddingDimensions)
		assert.Equal(t, 20, cfg.SummaryFirstN)
		assert.Equal(t, 30, cfg.SummaryMiddleN)
		assert.Equal(t, 50, cfg.SummaryLastN)
		assert.True(t, cfg.UseAISummaries)
		assert.True(t, cfg.UseRealEmbeddings)
	})
}

func TestLoad_useAISummariesFalse(t *testing.T) {
	withEnv(t, map[string]string{
		"DATABASE_URL":      "postgres://localhost/test",
		"POSTGRES_PASSWORD": "secret",
		"USE_AI_SUMMARIES":  "false",
	}, func() {
		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.UseAISummaries)
	})
}

func TestValidate_rejectsNonPositiveDimensions(t *testing.T) {
	cfg := Config{
		DatabaseURL:         "postgres://localhost/test",
		PostgresPassword:    "x",
		EmbeddingDimensions: 0,
		MaxRequestBodyBytes: 1,
		PipelineWorkers:     1,
		PipelineQueueSize:   1,
	}
	require.Error(t, cfg.Validate())
}

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-run/recall/internal/model"
)

func mustUpsertAgentDef(t *testing.T, agentType, configHash string) model.AgentDefinition {
	t.Helper()
	def, err := testDB.UpsertAgentDefinition(context.Background(), model.AgentDefinition{
		AgentType:    agentType,
		SystemPrompt: "you are a code reviewer",
		Tools:        []string{"Read", "Grep"},
		Model:        "claude-opus",
		ConfigHash:   configHash,
	})
	require.NoError(t, err)
	return def
}

func TestUpsertAgentDefinition_collapsesOnSameHash(t *testing.T) {
	first := mustUpsertAgentDef(t, "reviewer", "hash-dedup-1")
	second := mustUpsertAgentDef(t, "reviewer", "hash-dedup-1")
	assert.Equal(t, first.ID, second.ID)
}

func TestUpsertAgentDefinition_newVersionOnDifferentHash(t *testing.T) {
	first := mustUpsertAgentDef(t, "versioned-agent", "hash-v1")
	second, err := testDB.UpsertAgentDefinition(context.Background(), model.AgentDefinition{
		AgentType:    "versioned-agent",
		SystemPrompt: "you are a code reviewer, now with linting",
		Tools:        []string{"Read", "Grep", "Bash"},
		Model:        "claude-opus",
		ConfigHash:   "hash-v2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Greater(t, second.Version, first.Version)
}

func TestPersistAndGetAgentWork(t *testing.T) {
	ctx := context.Background()
	def := mustUpsertAgentDef(t, "researcher", "hash-researcher-1")

	rec := model.AgentWork{
		RequestID:       "req-1",
		ParentSessionID: "session-1",
		AgentDefID:      def.ID,
		AgentInstanceID: "instance-1",
		Task:            "survey the example repos for dependency reuse",
		Messages:        []model.Message{{Role: "user", Content: "go read the pack"}},
		ToolUsage:       map[string]int{"Read": 5, "Grep": 2},
		FilesExamined:   []string{"go.mod"},
		ResultSummary:   "found three candidate teachers",
		StartedAt:       time.Now().Add(-time.Minute),
		EndedAt:         time.Now(),
	}

	saved, err := testDB.PersistAgentWork(ctx, rec)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	got, err := testDB.GetAgentWork(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Task, got.Task)
	assert.Equal(t, rec.ResultSummary, got.ResultSummary)
}

func TestPersistAgentWork_sameInstanceAndSessionUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	def := mustUpsertAgentDef(t, "replay-agent", "hash-replay-1")

	base := model.AgentWork{
		RequestID:       "req-replay",
		ParentSessionID: "session-replay",
		AgentDefID:      def.ID,
		AgentInstanceID: "instance-replay",
		Task:            "first pass",
		ResultSummary:   "partial",
		StartedAt:       time.Now(),
		EndedAt:         time.Now(),
	}

	first, err := testDB.PersistAgentWork(ctx, base)
	require.NoError(t, err)

	base.ResultSummary = "complete"
	second, err := testDB.PersistAgentWork(ctx, base)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	got, err := testDB.GetAgentWork(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "complete", got.ResultSummary)
}

func TestRecentAgentWork_boundsByLimit(t *testing.T) {
	ctx := context.Background()
	def := mustUpsertAgentDef(t, "bulk-agent", "hash-bulk-1")

	for i := 0; i < 3; i++ {
		_, err := testDB.PersistAgentWork(ctx, model.AgentWork{
			ParentSessionID: "session-bulk",
			AgentDefID:      def.ID,
			AgentInstanceID: "instance-bulk",
			Task:            "bulk task",
			StartedAt:       time.Now(),
			EndedAt:         time.Now(),
		})
		require.NoError(t, err)
	}

	out, err := testDB.RecentAgentWork(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestAgentWorkForSession(t *testing.T) {
	ctx := context.Background()
	def := mustUpsertAgentDef(t, "session-agent", "hash-session-1")

	_, err := testDB.PersistAgentWork(ctx, model.AgentWork{
		ParentSessionID: "session-for-test",
		AgentDefID:      def.ID,
		AgentInstanceID: "instance-session-test",
		Task:            "task for session lookup",
		StartedAt:       time.Now(),
		EndedAt:         time.Now(),
	})
	require.NoError(t, err)

	out, err := testDB.AgentWorkForSession(ctx, "session-for-test")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings.
	DatabaseURL string // Postgres+pgvector connection string for queries.
	NotifyURL   string // Direct Postgres URL for LISTEN/NOTIFY; empty disables it.

	// Auxiliary Postgres settings used by offline utilities (backfill, reprocess).
	// PostgresPassword has no default: a missing value fails config.Load outright.
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	// Summarization settings.
	OllamaURL      string
	SummaryModel   string
	UseAISummaries bool
	SummaryFirstN  int
	SummaryMiddleN int
	SummaryLastN   int

	// Embedding settings.
	EmbeddingModel      string
	EmbeddingDimensions int
	UseRealEmbeddings   bool

	// Optional ANN search mirror.
	QdrantURL          string
	QdrantAPIKey       string
	QdrantCollection   string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	// Ingress settings.
	ProcessorPort       int
	ProcessorURL        string
	ClaudeWorkspaceRoot string
	MaxRequestBodyBytes int64

	// Pipeline settings.
	PipelineWorkers   int
	PipelineQueueSize int

	// Database pool settings.
	DBPoolMaxConns int

	// Rate limiting.
	CaptureRateLimitRPS   float64
	CaptureRateLimitBurst int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel string

	// AnthropicAPIKey is used only by the out-of-core enhanced-summary utility.
	AnthropicAPIKey string
}

// Load reads configuration from environment variables with sensible defaults.
// POSTGRES_PASSWORD has no fallback: its absence makes Load return an error.
func Load() (Config, error) {
	cfg := Config{
		Port:         envInt("PROCESSOR_PORT", 3200),
		ReadTimeout:  envDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: envDuration("WRITE_TIMEOUT", 30*time.Second),

		DatabaseURL: envStr("DATABASE_URL", ""),
		NotifyURL:   envStr("NOTIFY_URL", ""),

		PostgresHost:     envStr("POSTGRES_HOST", "localhost"),
		PostgresPort:     envInt("POSTGRES_PORT", 5432),
		PostgresDB:       envStr("POSTGRES_DB", "claude_memory"),
		PostgresUser:     envStr("POSTGRES_USER", "claude_memory"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),

		OllamaURL:      envStr("OLLAMA_URL", "http://localhost:11434"),
		SummaryModel:   envStr("SUMMARY_MODEL", "llama3.1"),
		UseAISummaries: envStr("USE_AI_SUMMARIES", "true") != "false",
		SummaryFirstN:  envInt("SUMMARY_FIRST_N", 20),
		SummaryMiddleN: envInt("SUMMARY_MIDDLE_N", 30),
		SummaryLastN:   envInt("SUMMARY_LAST_N", 50),

		EmbeddingModel:      envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 384),
		UseRealEmbeddings:   envStr("USE_REAL_EMBEDDINGS", "true") != "false",

		QdrantURL:          envStr("QDRANT_URL", ""),
		QdrantAPIKey:       envStr("QDRANT_API_KEY", ""),
		QdrantCollection:   envStr("QDRANT_COLLECTION", "snapshots"),
		OutboxPollInterval: envDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    envInt("OUTBOX_BATCH_SIZE", 50),

		ProcessorURL:        envStr("PROCESSOR_URL", "http://localhost:3200"),
		ClaudeWorkspaceRoot: envStr("CLAUDE_WORKSPACE_ROOT", ""),
		MaxRequestBodyBytes: int64(envInt("MAX_REQUEST_BODY_BYTES", 1*1024*1024)),

		PipelineWorkers:   envInt("PIPELINE_WORKERS", 4),
		PipelineQueueSize: envInt("PIPELINE_QUEUE_SIZE", 256),

		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),

		CaptureRateLimitRPS:   envFloat("CAPTURE_RATE_LIMIT_RPS", 5.0),
		CaptureRateLimitBurst: envInt("CAPTURE_RATE_LIMIT_BURST", 20),

		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "capture-engine"),

		LogLevel: envStr("LOG_LEVEL", "info"),

		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
// A missing POSTGRES_PASSWORD is deliberately not defaulted — see the design
// notes on secrets policy; callers must set it explicitly.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("config: POSTGRES_PASSWORD is required and has no default — set it in the environment or .env file")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.SummaryFirstN < 0 || c.SummaryMiddleN < 0 || c.SummaryLastN < 0 {
		return fmt.Errorf("config: SUMMARY_FIRST_N/MIDDLE_N/LAST_N must be non-negative")
	}
	if c.PipelineWorkers <= 0 {
		return fmt.Errorf("config: PIPELINE_WORKERS must be positive")
	}
	if c.PipelineQueueSize <= 0 {
		return fmt.Errorf("config: PIPELINE_QUEUE_SIZE must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

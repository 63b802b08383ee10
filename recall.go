// Package recall is the public API for embedding the capture & retrieval
// engine.
//
// Consumers import this package to construct and extend the server
// without forking it:
//
//	app, err := recall.New(
//	    recall.WithVersion(version),
//	    recall.WithLogger(logger),
//	    recall.WithCaptureHook(myHook{}),
//	    recall.WithExtraRoutes(myExtraRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: recall (root) imports
// internal/*, but internal/* never imports recall (root). Public types
// (Snapshot, SearchResult, etc.) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file
// that sees both sides of the boundary.
package recall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/recall-run/recall/internal/config"
	"github.com/recall-run/recall/internal/embedding"
	"github.com/recall-run/recall/internal/mcp"
	"github.com/recall-run/recall/internal/model"
	"github.com/recall-run/recall/internal/pipeline"
	"github.com/recall-run/recall/internal/ratelimit"
	"github.com/recall-run/recall/internal/retrieval"
	"github.com/recall-run/recall/internal/search"
	"github.com/recall-run/recall/internal/server"
	"github.com/recall-run/recall/internal/storage"
	"github.com/recall-run/recall/internal/summarize"
	"github.com/recall-run/recall/internal/telemetry"
	"github.com/recall-run/recall/migrations"
)

// App is the capture & retrieval engine's process lifecycle. Construct
// with New(), run with Run(). App has no public fields — use New()
// options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	coord        *pipeline.Coordinator
	outbox       *search.OutboxWorker
	qdrantIndex  *search.QdrantIndex // nil when Qdrant is not configured
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	captureHooks []CaptureHook
	logger       *slog.Logger
	version      string
}

// New initializes the capture & retrieval engine. It connects to the
// database, runs migrations, wires all subsystems, and returns a
// ready-to-run App. It starts the pipeline's worker goroutines (and the
// rate limiter's eviction goroutine when rate limiting is enabled), but
// does NOT start the HTTP server or the outbox worker — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("recall starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, int32(cfg.DBPoolMaxConns), logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	var schemaOK bool
	if err := db.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'snapshots')`,
	).Scan(&schemaOK); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("critical table 'snapshots' does not exist after migration — check that the pgvector extension is installed")
	}

	// Embedding provider — external override takes priority over auto-detect.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embeddingProviderAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	// Summarizer — Ollama when real summaries are enabled, extractive-only otherwise.
	var summaryClient summarize.ModelClient
	if cfg.UseAISummaries {
		summaryClient = summarize.NewOllamaClient(cfg.OllamaURL, cfg.SummaryModel)
	}
	summarizer := summarize.New(summaryClient, cfg.UseAISummaries, summarize.SampleConfig{
		FirstN:  cfg.SummaryFirstN,
		MiddleN: cfg.SummaryMiddleN,
		LastN:   cfg.SummaryLastN,
	})

	// Qdrant search index and outbox worker.
	var searcher search.Searcher
	var qdrantIndex *search.QdrantIndex
	var outboxWorker *search.OutboxWorker
	if cfg.QdrantURL != "" {
		var idxErr error
		qdrantIndex, idxErr = search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if idxErr != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", idxErr)
		}
		if err := qdrantIndex.EnsureCollection(context.Background()); err != nil {
			_ = qdrantIndex.Close()
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant ensure collection: %w", err)
		}
		searcher = qdrantIndex
		outboxWorker = search.NewOutboxWorker(db.Pool(), qdrantIndex, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	}

	// External Searcher override replaces Qdrant for user-facing search.
	if o.searcher != nil {
		searcher = &searcherAdapter{s: o.searcher}
	}

	coord := pipeline.New(db, summarizer, embedder, cfg.PipelineWorkers, cfg.PipelineQueueSize, logger)
	if len(o.captureHooks) > 0 {
		hooks := o.captureHooks
		coord.OnCaptured(func(rec model.Snapshot) {
			snap := toPublicSnapshot(rec)
			event := CaptureEvent{
				SnapshotID:  snap.ID,
				ProjectPath: snap.ProjectPath,
				Trigger:     snap.Trigger,
				Summary:     snap.Summary,
				Tags:        snap.Tags,
			}
			hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, h := range hooks {
				if err := h.OnCaptured(hookCtx, event); err != nil {
					logger.Warn("capture hook failed", "error", err)
				}
			}
		})
	}

	retrievalSvc := retrieval.New(db, embedder, searcher, coord, logger)

	mcpSrv := mcp.New(retrievalSvc, logger)

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.CaptureRateLimitRPS > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.CaptureRateLimitRPS, cfg.CaptureRateLimitBurst)
		logger.Info("capture rate limiting: memory (in-process token bucket)",
			"rps", cfg.CaptureRateLimitRPS, "burst", cfg.CaptureRateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("capture rate limiting: disabled")
	}

	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		mw := mw // capture
		middlewares = append(middlewares, func(h http.Handler) http.Handler { return mw(h) })
	}

	var extraRoutes []func(*http.ServeMux)
	for _, fn := range o.routeRegistrars {
		fn := fn // capture
		extraRoutes = append(extraRoutes, func(mux *http.ServeMux) { fn(mux) })
	}

	srv := server.New(server.Config{
		DB:                  db,
		Coordinator:         coord,
		RetrievalSvc:        retrievalSvc,
		Logger:              logger,
		CaptureLimiter:      limiter,
		Searcher:            searcher,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		ExtraRoutes:         extraRoutes,
		Middlewares:         middlewares,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		coord:        coord,
		outbox:       outboxWorker,
		qdrantIndex:  qdrantIndex,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		captureHooks: o.captureHooks,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts all background goroutines and the HTTP server, then blocks
// until ctx is cancelled or a fatal server error occurs. On return,
// Shutdown is called automatically — callers should not call Shutdown
// separately.
func (a *App) Run(ctx context.Context) error {
	if a.outbox != nil {
		a.outbox.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown performs a graceful shutdown: stop accepting HTTP requests and
// drain in-flight requests, then drain the pipeline's worker pool and any
// remaining outbox entries, then close the database pool and OTEL
// provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("recall shutting down")

	httpCtx, httpCancel := context.WithTimeout(ctx, 15*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	a.coord.Shutdown(ctx)

	if a.outbox != nil {
		outboxCtx, outboxCancel := context.WithTimeout(ctx, 15*time.Second)
		a.outbox.Drain(outboxCtx)
		outboxCancel()
	}

	if a.qdrantIndex != nil {
		_ = a.qdrantIndex.Close()
	}
	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.db.Close(context.Background())

	a.logger.Info("recall stopped")
	return nil
}

// ── Adapters (defined here because this file imports both sides) ──────────

// embeddingProviderAdapter wraps a public EmbeddingProvider to satisfy
// internal/embedding.Provider.
type embeddingProviderAdapter struct {
	p EmbeddingProvider
}

func (a *embeddingProviderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.p.Embed(ctx, text)
}

func (a *embeddingProviderAdapter) Dimensions() int { return a.p.Dimensions() }

// searcherAdapter wraps a public Searcher to satisfy internal/search.Searcher.
type searcherAdapter struct {
	s Searcher
}

func (a *searcherAdapter) Search(ctx context.Context, emb []float32, projectPath string, limit int) ([]search.Result, error) {
	results, err := a.s.Search(ctx, emb, SearchFilters{ProjectPath: projectPath}, limit)
	if err != nil {
		return nil, err
	}
	out := make([]search.Result, len(results))
	for i, r := range results {
		out[i] = search.Result{SnapshotID: r.SnapshotID, Score: r.Score}
	}
	return out, nil
}

func (a *searcherAdapter) Healthy(ctx context.Context) error {
	return a.s.Healthy(ctx)
}

// ── Type converters ─────────────────────────────────────────────────────

// toPublicSnapshot converts an internal model.Snapshot to the public
// recall.Snapshot. Lives here because this is the only file that imports
// both sides of the boundary.
func toPublicSnapshot(s model.Snapshot) Snapshot {
	var gitHash, gitBranch string
	if s.GitHash != nil {
		gitHash = *s.GitHash
	}
	if s.GitBranch != nil {
		gitBranch = *s.GitBranch
	}
	return Snapshot{
		ID:             s.ID,
		ProjectPath:    s.ProjectPath,
		Trigger:        s.Trigger,
		Timestamp:      s.Timestamp,
		Summary:        s.Summary,
		Tags:           s.Tags,
		MentionedFiles: s.MentionedFiles,
		KeyDecisions:   s.KeyDecisions,
		BugsFixed:      s.BugsFixed,
		MessageCount:   s.MessageCount,
		GitHash:        gitHash,
		GitBranch:      gitBranch,
	}
}

// ── Helpers ──────────────────────────────────────────────────────────────

func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	if !cfg.UseRealEmbeddings {
		logger.Info("embedding provider: synthetic (USE_REAL_EMBEDDINGS=false)")
		return embedding.NewSyntheticProvider(dims)
	}
	if embedding.Reachable(context.Background(), cfg.OllamaURL) {
		logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel, dims)
	}
	logger.Warn("ollama unreachable, falling back to synthetic embeddings (semantic search degraded)")
	return embedding.NewSyntheticProvider(dims)
}

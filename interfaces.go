package recall

import (
	"context"
	"net/http"
)

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces the auto-detected
// Ollama/synthetic embedder. New() wraps it in an adapter for internal
// use so external consumers never need to import internal/embedding.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Searcher is a vector search index for snapshots.
// When provided via WithSearcher, replaces the auto-detected Qdrant mirror.
// Returns snapshot IDs + scores; the caller hydrates full snapshots from
// Postgres.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, filters SearchFilters, limit int) ([]SearchResult, error)
	Healthy(ctx context.Context) error
}

// CaptureHook receives an async notification whenever a capture finishes
// processing and is persisted. Multiple hooks may be registered via
// multiple WithCaptureHook calls. Hook methods run in a goroutine — they
// must not block indefinitely — and failures are logged but never fail
// the originating request, since the request was already acknowledged
// before the pipeline ran.
type CaptureHook interface {
	OnCaptured(ctx context.Context, event CaptureEvent) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the mux and OTEL instrumentation with the built-in
// routes. The function is called once during New() after all built-in
// routes are registered.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including
// /health. Multiple middlewares are applied in registration order
// (first-registered = outermost).
type Middleware func(http.Handler) http.Handler

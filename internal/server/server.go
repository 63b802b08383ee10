package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/recall-run/recall/internal/pipeline"
	"github.com/recall-run/recall/internal/ratelimit"
	"github.com/recall-run/recall/internal/retrieval"
	"github.com/recall-run/recall/internal/search"
	"github.com/recall-run/recall/internal/storage"
)

// Server is the capture & retrieval engine's HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): CaptureLimiter, Searcher, MCPServer,
// ExtraRoutes, Middlewares.
type Config struct {
	DB           *storage.DB
	Coordinator  *pipeline.Coordinator
	RetrievalSvc *retrieval.Service
	Logger       *slog.Logger

	CaptureLimiter ratelimit.Limiter
	Searcher       search.Searcher
	MCPServer      *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// ExtraRoutes are called, in order, against the shared mux after all
	// built-in routes are registered.
	ExtraRoutes []func(*http.ServeMux)
	// Middlewares wrap the root handler outermost-first, in registration
	// order, ahead of the built-in request-ID/tracing/logging/recovery chain.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Coordinator:         cfg.Coordinator,
		RetrievalSvc:        cfg.RetrievalSvc,
		Searcher:            cfg.Searcher,
		CaptureLimiter:      cfg.CaptureLimiter,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Ingress.
	mux.HandleFunc("POST /capture", h.HandleCapture)
	mux.HandleFunc("POST /capture_agent_work", h.HandleCaptureAgentWork)
	mux.HandleFunc("POST /embed", h.HandleEmbed)

	// Retrieval API, mirrored at the read-only /api/* surface.
	mux.HandleFunc("GET /api/stats", h.HandleProjectStats)
	mux.HandleFunc("GET /api/projects", h.HandleProjectStats)
	mux.HandleFunc("GET /api/recent", h.HandleRecentSnapshots)
	mux.HandleFunc("GET /api/quality", h.HandleQualityReport)
	mux.HandleFunc("GET /api/bugs", h.HandleBugs)
	mux.HandleFunc("GET /api/files", h.HandleFileActivity)
	mux.HandleFunc("GET /api/decisions", h.HandleDecisions)
	mux.HandleFunc("GET /api/search", h.HandleSearchMemory)
	mux.HandleFunc("GET /api/search/raw", h.HandleSearchRawMessages)
	mux.HandleFunc("GET /api/search/phrase", h.HandleSearchExactPhrase)
	mux.HandleFunc("GET /api/timeline", h.HandleTimeline)
	mux.HandleFunc("GET /api/snapshots/{id}", h.HandleGetSnapshot)
	mux.HandleFunc("GET /api/agents/stats", h.HandleAgentStats)
	mux.HandleFunc("GET /api/agents/performance", h.HandleAgentStats)
	mux.HandleFunc("GET /api/agents/tools", h.HandleAgentTools)
	mux.HandleFunc("GET /api/agents/recent", h.HandleRecentAgentWork)
	mux.HandleFunc("GET /api/agents/search", h.HandleSearchAgentWork)
	mux.HandleFunc("GET /api/agents/compare", h.HandleCompareAgentConfigs)

	// MCP StreamableHTTP transport, mirroring the teacher's mount point.
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Health (no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, fn := range cfg.ExtraRoutes {
		fn(mux)
	}

	// Middleware chain (outermost executes first):
	// caller-supplied middlewares → request ID → tracing → logging →
	// recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

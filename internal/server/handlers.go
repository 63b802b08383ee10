package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/recall-run/recall/internal/model"
	"github.com/recall-run/recall/internal/pipeline"
	"github.com/recall-run/recall/internal/ratelimit"
	"github.com/recall-run/recall/internal/retrieval"
	"github.com/recall-run/recall/internal/search"
	"github.com/recall-run/recall/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	coord               *pipeline.Coordinator
	retrievalSvc        *retrieval.Service
	searcher            search.Searcher
	captureLimiter      ratelimit.Limiter
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers. Searcher
// may be nil when Qdrant is not configured; CaptureLimiter may be nil to
// disable capture rate limiting entirely.
type HandlersDeps struct {
	DB                  *storage.DB
	Coordinator         *pipeline.Coordinator
	RetrievalSvc        *retrieval.Service
	Searcher            search.Searcher
	CaptureLimiter      ratelimit.Limiter
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		coord:               d.Coordinator,
		retrievalSvc:        d.RetrievalSvc,
		searcher:            d.Searcher,
		captureLimiter:      d.CaptureLimiter,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// checkCaptureRateLimit enforces the per-project-path token bucket ahead of
// enqueueing. A limiter malfunction fails open — a limiter error must never
// block capture traffic.
func (h *Handlers) checkCaptureRateLimit(w http.ResponseWriter, r *http.Request, projectPath string) bool {
	if h.captureLimiter == nil {
		return true
	}
	allowed, err := h.captureLimiter.Allow(r.Context(), projectPath)
	if err != nil {
		h.logger.Warn("capture rate limiter error, failing open", "error", err)
		return true
	}
	if !allowed {
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusTooManyRequests, model.ErrCodeBusy, "too many captures for this project")
		return false
	}
	return true
}

// HandleCapture handles POST /capture. It validates shape, acknowledges
// synchronously with 202, and hands the request to the Coordinator's
// bounded queue — pipeline-side failures never surface here.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req model.CaptureRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body")
		return
	}

	if req.ProjectPath == "" || req.Trigger == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "project_path and trigger are required")
		return
	}
	if req.ConversationData == nil && req.TranscriptPath == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "one of conversation_data or transcript_path is required")
		return
	}
	if !h.checkCaptureRateLimit(w, r, req.ProjectPath) {
		return
	}

	err := h.coord.Submit(pipeline.CaptureRequest{
		ProjectPath:      req.ProjectPath,
		Trigger:          req.Trigger,
		ConversationData: req.ConversationData,
		SessionID:        req.SessionID,
		TranscriptPath:   req.TranscriptPath,
	})
	if err != nil {
		h.logger.Warn("capture rejected", "project_path", req.ProjectPath, "trigger", req.Trigger, "error", err)
		writeModelError(w, r, err)
		return
	}

	h.logger.Info("capture accepted", "project_path", req.ProjectPath, "trigger", req.Trigger, "session_id", req.SessionID)
	writeJSON(w, r, http.StatusAccepted, model.CaptureResponse{
		Status:      "accepted",
		ProjectPath: req.ProjectPath,
		Trigger:     req.Trigger,
	})
}

// HandleCaptureAgentWork handles POST /capture_agent_work. Metadata
// extraction is skipped for agent-work; the agent-definition dedup hash is
// computed here, before enqueueing, so the pipeline never needs to see raw
// configuration twice.
func (h *Handlers) HandleCaptureAgentWork(w http.ResponseWriter, r *http.Request) {
	var req model.AgentWorkCaptureRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body")
		return
	}

	if req.AgentType == "" || req.ParentSessionID == "" || req.AgentInstanceID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "agent_type, parent_session_id, and agent_instance_id are required")
		return
	}

	if !h.checkCaptureRateLimit(w, r, req.ParentSessionID) {
		return
	}

	hash, err := model.ComputeConfigHash(req.SystemPrompt, req.Configuration, req.Tools, req.Model)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "could not hash agent configuration")
		return
	}

	err = h.coord.SubmitAgentWork(pipeline.AgentWorkRequest{
		RequestID:        req.RequestID,
		ParentSnapshotID: req.ParentSnapshotID,
		ParentSessionID:  req.ParentSessionID,
		AgentDefinition: model.AgentDefinition{
			AgentType:     req.AgentType,
			Name:          req.AgentName,
			SystemPrompt:  req.SystemPrompt,
			Configuration: req.Configuration,
			Tools:         req.Tools,
			Model:         req.Model,
			ConfigHash:    hash,
		},
		AgentInstanceID: req.AgentInstanceID,
		Task:            req.Task,
		TranscriptPath:  req.TranscriptPath,
		Messages:        req.Messages,
		ToolUsage:       req.ToolUsage,
		FilesExamined:   req.FilesExamined,
		URLsFetched:     req.URLsFetched,
		ResultSummary:   req.ResultSummary,
		StartedAt:       req.StartedAt,
		EndedAt:         req.EndedAt,
	})
	if err != nil {
		h.logger.Warn("agent work capture rejected", "agent_type", req.AgentType, "error", err)
		writeModelError(w, r, err)
		return
	}

	h.logger.Info("agent work capture accepted", "agent_type", req.AgentType, "agent_instance_id", req.AgentInstanceID)
	writeJSON(w, r, http.StatusAccepted, model.CaptureResponse{
		Status:      "accepted",
		ProjectPath: req.ParentSessionID,
		Trigger:     "agent_work",
	})
}

// HandleEmbed handles POST /embed — used by external callers (and the
// Retrieval API itself) to embed ad-hoc text.
func (h *Handlers) HandleEmbed(w http.ResponseWriter, r *http.Request) {
	var req model.EmbedRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "text is required")
		return
	}

	vec, err := h.retrievalSvc.EmbedQuery(r.Context(), req.Text)
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.EmbedResponse{
		Status:     "ok",
		Embedding:  vec,
		Dimensions: len(vec),
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.retrievalSvc.SystemStatus(r.Context())

	pgStatus := "connected"
	httpStatusCode := http.StatusOK
	overall := "healthy"
	if !status.StoreReachable {
		pgStatus = "disconnected"
		httpStatusCode = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	searchIndex := ""
	if status.SearchIndexUsed {
		if status.SearchIndexOK {
			searchIndex = "connected"
		} else {
			searchIndex = "disconnected"
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	writeJSON(w, r, httpStatusCode, model.HealthResponse{
		Status:        overall,
		Version:       h.version,
		Postgres:      pgStatus,
		PipelineQueue: status.PipelineQueueLen,
		SearchIndex:   searchIndex,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

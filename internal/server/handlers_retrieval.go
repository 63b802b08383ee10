package server

import (
	"net/http"

	"github.com/recall-run/recall/internal/model"
)

// HandleSearchMemory handles GET /api/search — semantic search over
// snapshots with lexical fallback.
func (h *Handlers) HandleSearchMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if query == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "query is required")
		return
	}

	results, err := h.retrievalSvc.SearchMemory(r.Context(), query, q.Get("project_path"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, results)
}

// HandleSearchRawMessages handles GET /api/search/raw.
func (h *Handlers) HandleSearchRawMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if query == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "query is required")
		return
	}

	hits, err := h.retrievalSvc.SearchRawMessages(r.Context(), query, q.Get("project_path"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, hits)
}

// HandleSearchExactPhrase handles GET /api/search/phrase.
func (h *Handlers) HandleSearchExactPhrase(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	phrase := q.Get("phrase")
	if phrase == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "phrase is required")
		return
	}

	results, err := h.retrievalSvc.SearchExactPhrase(r.Context(), phrase, q.Get("project_path"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, results)
}

// HandleTimeline handles GET /api/timeline.
func (h *Handlers) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	rows, err := h.retrievalSvc.GetTimeline(r.Context(), r.URL.Query().Get("project_path"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleGetSnapshot handles GET /api/snapshots/{id}.
func (h *Handlers) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := queryInt(r, "id", -1)
	if id < 0 {
		id = pathInt(r.PathValue("id"))
	}
	if id <= 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "id is required")
		return
	}

	snap, err := h.retrievalSvc.GetSnapshot(r.Context(), int64(id))
	if err == model.ErrNotFound {
		writeError(w, r, http.StatusNotFound, model.ErrCodeUnknownOperation, "snapshot not found")
		return
	}
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleRecentSnapshots handles GET /api/recent?limit=N.
func (h *Handlers) HandleRecentSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.retrievalSvc.RecentSnapshots(r.Context(), r.URL.Query().Get("project_path"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snaps)
}

// HandleQualityReport handles GET /api/quality.
func (h *Handlers) HandleQualityReport(w http.ResponseWriter, r *http.Request) {
	rows, buckets, err := h.retrievalSvc.GetQualityReport(r.Context(), r.URL.Query().Get("project_path"), queryInt(r, "min_score", 0), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, struct {
		Rows    any `json:"rows"`
		Buckets any `json:"buckets"`
	}{Rows: rows, Buckets: buckets})
}

// HandleProjectStats handles GET /api/projects and GET /api/stats.
func (h *Handlers) HandleProjectStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.retrievalSvc.GetProjectStats(r.Context(), r.URL.Query().Get("project_path"))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleDecisions handles GET /api/decisions.
func (h *Handlers) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.retrievalSvc.SearchDecisions(r.Context(), q.Get("project_path"), q.Get("keyword"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleBugs handles GET /api/bugs.
func (h *Handlers) HandleBugs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.retrievalSvc.AnalyzeBugs(r.Context(), q.Get("project_path"), q.Get("category"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleFileActivity handles GET /api/files.
func (h *Handlers) HandleFileActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.retrievalSvc.GetFileActivity(r.Context(), q.Get("project_path"), q.Get("file_type"), queryInt(r, "min_mentions", 0), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleSearchAgentWork handles GET /api/agents/search.
func (h *Handlers) HandleSearchAgentWork(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "query is required")
		return
	}
	rows, err := h.retrievalSvc.SearchAgentWork(r.Context(), query, queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleRecentAgentWork handles GET /api/agents/recent.
func (h *Handlers) HandleRecentAgentWork(w http.ResponseWriter, r *http.Request) {
	rows, err := h.retrievalSvc.RecentAgentWork(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleAgentStats handles GET /api/agents/stats and /api/agents/performance.
func (h *Handlers) HandleAgentStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	analytics, err := h.retrievalSvc.GetAgentAnalytics(r.Context(), q.Get("agent_type"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, analytics)
}

// HandleAgentTools handles GET /api/agents/tools.
func (h *Handlers) HandleAgentTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	analytics, err := h.retrievalSvc.GetAgentAnalytics(r.Context(), q.Get("agent_type"), queryInt(r, "limit", 0))
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, analytics.ToolUsage)
}

// HandleCompareAgentConfigs handles GET /api/agents/compare.
func (h *Handlers) HandleCompareAgentConfigs(w http.ResponseWriter, r *http.Request) {
	agentType := r.URL.Query().Get("agent_type")
	if agentType == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "agent_type is required")
		return
	}
	rows, err := h.retrievalSvc.CompareAgentConfigs(r.Context(), agentType)
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

func pathInt(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	if s == "" {
		return -1
	}
	return n
}

package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// CaptureRequest is the body of POST /capture. At least one of
// ConversationData or TranscriptPath must be resolvable.
type CaptureRequest struct {
	ProjectPath      string        `json:"project_path"`
	Trigger          string        `json:"trigger"`
	ConversationData *Conversation `json:"conversation_data,omitempty"`
	SessionID        *string       `json:"session_id,omitempty"`
	TranscriptPath   *string       `json:"transcript_path,omitempty"`
}

// CaptureResponse is the 202 body returned synchronously on acceptance.
type CaptureResponse struct {
	Status      string `json:"status"`
	ProjectPath string `json:"project_path"`
	Trigger     string `json:"trigger"`
}

// AgentWorkCaptureRequest is the body of POST /capture_agent_work.
type AgentWorkCaptureRequest struct {
	RequestID        string            `json:"request_id"`
	ParentSnapshotID *int64            `json:"parent_snapshot_id,omitempty"`
	ParentSessionID  string            `json:"parent_session_id"`
	AgentType        string            `json:"agent_type"`
	AgentName        *string           `json:"agent_name,omitempty"`
	SystemPrompt     string            `json:"system_prompt"`
	Configuration    map[string]any    `json:"configuration,omitempty"`
	Tools            []string          `json:"tools,omitempty"`
	Model            string            `json:"model"`
	AgentInstanceID  string            `json:"agent_instance_id"`
	Task             string            `json:"task"`
	TranscriptPath   *string           `json:"transcript_path,omitempty"`
	Messages         []Message         `json:"messages,omitempty"`
	ToolUsage        map[string]int    `json:"tool_usage,omitempty"`
	FilesExamined    []string          `json:"files_examined,omitempty"`
	URLsFetched      []string          `json:"urls_fetched,omitempty"`
	ResultSummary     string           `json:"result_summary,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	EndedAt          time.Time         `json:"ended_at"`
}

// EmbedRequest is the body of POST /embed.
type EmbedRequest struct {
	Text string `json:"text"`
}

// EmbedResponse is the response body of POST /embed.
type EmbedResponse struct {
	Status     string    `json:"status"`
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Postgres        string `json:"postgres"`
	PipelineQueue   int    `json:"pipeline_queue_depth"`
	SearchIndex     string `json:"search_index,omitempty"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// ErrorCode constants for standard API error codes, one per Kind plus
// INTERNAL_ERROR for errors that carry no Kind. Rate-limited requests are
// answered with BUSY; ErrCodeRateLimited is not returned by any handler or
// middleware.
const (
	ErrCodeBadRequest             = "BAD_REQUEST"
	ErrCodeBusy                   = "BUSY"
	ErrCodeEmptyConversation      = "EMPTY_CONVERSATION"
	ErrCodeSummarizerUnavailable  = "SUMMARIZER_UNAVAILABLE"
	ErrCodeEmbedderUnavailable    = "EMBEDDER_UNAVAILABLE"
	ErrCodeStoreConflict          = "STORE_CONFLICT"
	ErrCodeStoreFatal             = "STORE_FATAL"
	ErrCodeUnknownOperation       = "UNKNOWN_OPERATION"
	ErrCodeConfigMissing          = "CONFIG_MISSING"
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeInternalError          = "INTERNAL_ERROR"
)

// ErrorCodeFor maps an error Kind to its wire-level error code.
func ErrorCodeFor(kind Kind) string {
	switch kind {
	case KindBadRequest:
		return ErrCodeBadRequest
	case KindBusy:
		return ErrCodeBusy
	case KindEmptyConversation:
		return ErrCodeEmptyConversation
	case KindSummarizerUnavailable:
		return ErrCodeSummarizerUnavailable
	case KindEmbedderUnavailable:
		return ErrCodeEmbedderUnavailable
	case KindStoreConflict:
		return ErrCodeStoreConflict
	case KindStoreFatal:
		return ErrCodeStoreFatal
	case KindUnknownOperation:
		return ErrCodeUnknownOperation
	case KindConfigMissing:
		return ErrCodeConfigMissing
	default:
		return ErrCodeInternalError
	}
}

// HTTPStatusFor maps an error Kind to its HTTP status code.
func HTTPStatusFor(kind Kind) int {
	switch kind {
	case KindBadRequest, KindEmptyConversation:
		return 400
	case KindBusy:
		return 429
	case KindUnknownOperation:
		return 404
	case KindStoreConflict:
		return 409
	case KindSummarizerUnavailable, KindEmbedderUnavailable, KindStoreFatal, KindConfigMissing:
		return 500
	default:
		return 500
	}
}

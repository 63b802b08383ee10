package ratelimit

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/recall-run/recall/internal/model"
)

// KeyFunc extracts the rate limit key from a request. Returning an empty
// string skips rate limiting for this request.
type KeyFunc func(r *http.Request) string

// RequestIDFunc extracts the request ID from the request context. Injected
// by the caller to avoid a dependency on the server package.
type RequestIDFunc func(r *http.Request) string

// Middleware returns HTTP middleware enforcing limiter against the key
// produced by keyFunc. A denied request is reported as Busy, matching the
// capture backpressure contract: reject immediately rather than queue.
func Middleware(limiter Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return MiddlewareWithRequestID(limiter, keyFunc, nil)
}

// MiddlewareWithRequestID is like Middleware but includes the request ID in
// the rate-limit error response, matching the standard API error envelope.
func MiddlewareWithRequestID(limiter Limiter, keyFunc KeyFunc, reqIDFunc RequestIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				// Fail open: a limiter malfunction must not block traffic.
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				var requestID string
				if reqIDFunc != nil {
					requestID = reqIDFunc(r)
				}
				writeBusyError(w, requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeBusyError writes a Busy error using the standard API error envelope.
func writeBusyError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(model.HTTPStatusFor(model.KindBusy))
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{
			Code:    model.ErrorCodeFor(model.KindBusy),
			Message: "too many requests for this project",
		},
		Meta: model.ResponseMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	})
}

// ProjectPathKeyFunc returns a KeyFunc that always yields projectPath; it
// does not read the request, so callers pass in a project path they have
// already decoded.
func ProjectPathKeyFunc(projectPath string) KeyFunc {
	return func(r *http.Request) string {
		return projectPath
	}
}

// IPKeyFunc extracts the client IP from the request for rate limiting.
// Uses RemoteAddr only. X-Forwarded-For is not trusted because the server
// may not be behind a reverse proxy that sanitizes the header, and any
// client can set an arbitrary value to bypass rate limiting.
func IPKeyFunc(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

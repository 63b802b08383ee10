package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-run/recall/internal/ratelimit"
)

func TestMiddleware_allowsUnderBurst(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(10, 3)
	defer limiter.Close()

	calls := 0
	mw := ratelimit.Middleware(limiter, func(r *http.Request) string { return "proj-a" })
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 3, calls)
}

func TestMiddleware_busyAfterBurstExhausted(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(10, 1)
	defer limiter.Close()

	mw := ratelimit.Middleware(limiter, func(r *http.Request) string { return "proj-a" })
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, httptest.NewRequest(http.MethodPost, "/capture", nil))
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/capture", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
}

func TestMiddleware_independentKeysHaveIndependentBuckets(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(10, 1)
	defer limiter.Close()

	key := "proj-a"
	mw := ratelimit.Middleware(limiter, func(r *http.Request) string { return key })
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	key = "proj-b"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/capture", nil))
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestMiddleware_emptyKeySkipsLimiting(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(10, 1)
	defer limiter.Close()

	mw := ratelimit.Middleware(limiter, func(r *http.Request) string { return "" })
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMiddleware_nilLimiterPassesThrough(t *testing.T) {
	mw := ratelimit.Middleware(nil, ratelimit.IPKeyFunc)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPKeyFunc_stripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	assert.Equal(t, "203.0.113.5", ratelimit.IPKeyFunc(req))
}

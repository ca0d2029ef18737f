package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraph-io/plater-automat/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New("test", "error", "json")
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(60, time.Minute, 2, testLogger())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/cypher", nil)
	req.RemoteAddr = "203.0.113.1:1234"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should be within burst", i)
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(60, time.Minute, 1, testLogger())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/cypher", nil)
	req.RemoteAddr = "203.0.113.2:1234"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestRateLimiter_TracksClientsIndependently(t *testing.T) {
	rl := NewRateLimiter(60, time.Minute, 1, testLogger())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	reqA := httptest.NewRequest(http.MethodGet, "/cypher", nil)
	reqA.RemoteAddr = "198.51.100.10:1"
	reqB := httptest.NewRequest(http.MethodGet, "/cypher", nil)
	reqB.RemoteAddr = "198.51.100.11:1"

	recA := httptest.NewRecorder()
	handler.ServeHTTP(recA, reqA)
	require.Equal(t, http.StatusOK, recA.Code)

	recB := httptest.NewRecorder()
	handler.ServeHTTP(recB, reqB)
	require.Equal(t, http.StatusOK, recB.Code, "a different client IP must not share the first client's budget")
}

func TestRateLimiter_CleanupResetsOversizedTable(t *testing.T) {
	rl := NewRateLimiter(60, time.Minute, 1, testLogger())
	for i := 0; i < 10001; i++ {
		rl.getLimiter(string(rune(i)))
	}
	rl.Cleanup()

	rl.mu.RLock()
	size := len(rl.limiters)
	rl.mu.RUnlock()
	assert.Equal(t, 0, size)
}

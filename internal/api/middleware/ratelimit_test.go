package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/vertex-studio/internal/platform/ratelimit"
)

func newTestRateLimiter(t *testing.T) *ratelimit.RateLimiter {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return ratelimit.NewRateLimiter(client, "test")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_PerClient(t *testing.T) {
	limiter := newTestRateLimiter(t)
	handler := RateLimit(limiter, RateLimitRule{Scope: "generate", PerMinute: 2})(okHandler())

	for i := 0; i < 2; i++ {
		rec := doRequest(handler, http.MethodPost, "/api/generate", "203.0.113.5:4000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := doRequest(handler, http.MethodPost, "/api/generate", "203.0.113.5:4001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")

	rec = doRequest(handler, http.MethodPost, "/api/generate", "198.51.100.9:4000")
	assert.Equal(t, http.StatusOK, rec.Code, "other clients keep their own budget")
}

func TestRateLimit_SkipsExemptPaths(t *testing.T) {
	limiter := newTestRateLimiter(t)
	handler := RateLimit(limiter, RateLimitRule{
		Scope:     "global",
		PerMinute: 1,
		Skip:      SkipPathPrefixes("/cache/", "/api/gallery", "/health"),
	})(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(handler, http.MethodGet, "/cache/a.png", "192.0.2.1:1").Code)
		assert.Equal(t, http.StatusOK, doRequest(handler, http.MethodGet, "/api/gallery?page=2", "192.0.2.1:1").Code)
		assert.Equal(t, http.StatusOK, doRequest(handler, http.MethodGet, "/health", "192.0.2.1:1").Code)
	}

	assert.Equal(t, http.StatusOK, doRequest(handler, http.MethodGet, "/", "192.0.2.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(handler, http.MethodGet, "/", "192.0.2.1:1").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("connection refused")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()

	handler := RateLimit(failingLimiter{}, RateLimitRule{Scope: "global", PerMinute: 1})(okHandler())
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(handler, http.MethodGet, "/", "192.0.2.1:1").Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	t.Parallel()

	handler := RateLimit(nil, RateLimitRule{Scope: "global", PerMinute: 1})(okHandler())
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(handler, http.MethodGet, "/", "192.0.2.1:1").Code)
	}
}

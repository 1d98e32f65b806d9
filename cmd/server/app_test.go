package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/phrazzld/vertex-studio/internal/api"
	"github.com/phrazzld/vertex-studio/internal/config"
	"github.com/phrazzld/vertex-studio/internal/domain"
	"github.com/phrazzld/vertex-studio/internal/generation"
	"github.com/phrazzld/vertex-studio/internal/platform/filecache"
	"github.com/phrazzld/vertex-studio/internal/platform/logger"
	"github.com/phrazzld/vertex-studio/internal/platform/ratelimit"
)

const (
	testAdminKey  = "correct-horse-battery-staple"
	testJWTSecret = "0123456789abcdef0123456789abcdef"
)

// stubProvider returns a fixed PNG payload for every call.
type stubProvider struct{}

func (stubProvider) Generate(_ context.Context, req generation.ProviderRequest) (domain.ImagePayload, error) {
	return domain.ImagePayload{MIMEType: "image/png", Data: []byte("png:" + req.Prompt)}, nil
}

func (stubProvider) Model() string {
	return "stub-image-model"
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{
			Port:              0,
			LogLevel:          "debug",
			PublicDir:         t.TempDir(),
			BodyLimitMB:       1,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   time.Second,
		},
		Vertex: config.VertexConfig{
			ProjectID:         "test-project",
			Location:          "us-central1",
			Model:             "stub-image-model",
			RequestTimeoutMS:  1000,
			RetryMaxAttempts:  1,
			RetryInitialDelay: time.Millisecond,
		},
		Cache: config.CacheConfig{
			Dir:       filepath.Join(t.TempDir(), "cache"),
			URLPrefix: "/cache",
		},
		Auth: config.AuthConfig{TokenLifetimeMinutes: 60},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*application, http.Handler) {
	t.Helper()

	l, _ := logger.GetTestLogger(t)
	app, err := assembleApplication(context.Background(), cfg, l, stubProvider{})
	require.NoError(t, err)
	t.Cleanup(app.cleanup)

	return app, app.setupRouter()
}

func serve(router http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_GenerateThenServeFromCache(t *testing.T) {
	t.Parallel()

	_, router := newTestApp(t, testConfig(t))

	rec := serve(router, http.MethodPost, "/api/generate", `{"prompt":"a lighthouse","n":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	var resp api.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 2)

	for _, image := range resp.Images {
		assert.True(t, strings.HasPrefix(image, "/cache/"), image)

		rec := serve(router, http.MethodGet, image, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "png:a lighthouse", rec.Body.String())
		assert.Equal(t, cacheControlValue, rec.Header().Get("Cache-Control"))
	}

	rec = serve(router, http.MethodGet, "/api/gallery?page=1&limit=12", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page filecache.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)
}

func TestRouter_GenerateValidationError(t *testing.T) {
	t.Parallel()

	_, router := newTestApp(t, testConfig(t))

	rec := serve(router, http.MethodPost, "/api/generate", `{"prompt":"","n":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Prompt is required")
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	_, router := newTestApp(t, testConfig(t))

	rec := serve(router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vertex_studio_http_requests_total")
}

func TestRouter_DebugCacheOnlyInDebugMode(t *testing.T) {
	t.Parallel()

	_, router := newTestApp(t, testConfig(t))
	rec := serve(router, http.MethodGet, "/debug/cache", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg := testConfig(t)
	cfg.Server.Debug = true
	_, router = newTestApp(t, cfg)
	rec = serve(router, http.MethodGet, "/debug/cache", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats filecache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.True(t, stats.Exists)
}

func TestRouter_ServesPublicDirectory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.PublicDir, "index.html"), []byte("<html>studio</html>"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(cfg.Server.PublicDir, "assets"), 0o755))
	_, router := newTestApp(t, cfg)

	rec := serve(router, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "studio")
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	rec = serve(router, http.MethodGet, "/assets/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_GalleryDeleteRequiresAdminToken(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Auth.AdminKeyHash = string(hash)
	_, router := newTestApp(t, cfg)

	rec := serve(router, http.MethodPost, "/api/generate", `{"prompt":"delete me"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var generated api.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &generated))
	require.Len(t, generated.Images, 1)
	filename := strings.TrimPrefix(generated.Images[0], "/cache/")

	rec = serve(router, http.MethodDelete, "/api/gallery/"+filename, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodPost, "/api/auth/token", `{"admin_key":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodPost, "/api/auth/token", `{"admin_key":"`+testAdminKey+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var token api.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))

	rec = serve(router, http.MethodDelete, "/api/gallery/"+filename, "", map[string]string{
		"Authorization": "Bearer " + token.Token,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(router, http.MethodGet, generated.Images[0], "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AuthDisabled(t *testing.T) {
	t.Parallel()

	_, router := newTestApp(t, testConfig(t))

	rec := serve(router, http.MethodPost, "/api/auth/token", `{"admin_key":"anything"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodDelete, "/api/gallery/1700000000000-abc.png", "", map[string]string{
		"Authorization": "Bearer token",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_GenerateRateLimit(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, GlobalPerMinute: 100, GeneratePerMinute: 1}
	cfg.Redis.URL = "redis://" + mr.Addr()
	app, router := newTestApp(t, cfg)
	require.NotNil(t, app.limiter)

	rec := serve(router, http.MethodPost, "/api/generate", `{"prompt":"first"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodPost, "/api/generate", `{"prompt":"second"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = serve(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_GenerateRateLimitWithoutRedis(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, GlobalPerMinute: 100, GeneratePerMinute: 10}
	_, router := newTestApp(t, cfg)

	for i := 0; i < 10; i++ {
		rec := serve(router, http.MethodPost, "/api/generate", `{"prompt":"lighthouse"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := serve(router, http.MethodPost, "/api/generate", `{"prompt":"lighthouse"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_CacheServesOnlyImages(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	_, router := newTestApp(t, cfg)

	rec := serve(router, http.MethodPost, "/api/generate", `{"prompt":"a harbor"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 1)
	image := resp.Images[0]

	require.FileExists(t, filepath.Join(cfg.Cache.Dir, strings.TrimPrefix(image, "/cache/")+".json"))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Cache.Dir, ".tmp-123"), []byte("partial"), 0o644))

	rec = serve(router, http.MethodGet, image, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, target := range []string{image + ".json", "/cache/.tmp-123", "/cache/"} {
		rec = serve(router, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestRouter_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	_, router := newTestApp(t, testConfig(t))

	body := `{"prompt":"` + strings.Repeat("a", 2<<20) + `"}`
	rec := serve(router, http.MethodPost, "/api/generate", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAssembleApplication(t *testing.T) {
	t.Parallel()

	t.Run("rate limiting without redis url uses in-process limiter", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		cfg.RateLimit.Enabled = true
		app, _ := newTestApp(t, cfg)
		assert.IsType(t, &ratelimit.MemoryLimiter{}, app.limiter)
		assert.Nil(t, app.redisClient)
	})

	t.Run("rate limiting disabled has no limiter", func(t *testing.T) {
		t.Parallel()

		app, _ := newTestApp(t, testConfig(t))
		assert.Nil(t, app.limiter)
	})

	t.Run("unreachable redis fails startup", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testConfig(t)
		cfg.RateLimit.Enabled = true
		cfg.Redis.URL = "redis://" + addr
		l, _ := logger.GetTestLogger(t)
		_, err := assembleApplication(context.Background(), cfg, l, stubProvider{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter")
	})

	t.Run("weak jwt secret fails startup", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		cfg.Auth.JWTSecret = "short"
		l, _ := logger.GetTestLogger(t)
		_, err := assembleApplication(context.Background(), cfg, l, stubProvider{})
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrWeakJWTSecret)
	})

	t.Run("retry policy follows configuration", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		cfg.Vertex.RetryMaxAttempts = 4
		app, _ := newTestApp(t, cfg)
		assert.NotNil(t, app.orchestrator)
		assert.Nil(t, app.jwtService)
	})
}

func TestStartHTTPServer_ShutsDownOnContextCancel(t *testing.T) {
	t.Parallel()

	app, router := newTestApp(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.startHTTPServer(ctx, router)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

package main

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/vertex-studio/internal/api"
	apiMiddleware "github.com/phrazzld/vertex-studio/internal/api/middleware"
	"github.com/phrazzld/vertex-studio/internal/platform/filecache"
)

// cacheControlValue lets browsers keep generated images for a day; cache
// filenames are unique so they never change.
const cacheControlValue = "public, max-age=86400"

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)
	r.Use(app.metrics.Middleware)
	r.Use(middleware.RequestSize(int64(app.config.Server.BodyLimitMB) << 20))

	limiter := app.limiter
	r.Use(apiMiddleware.RateLimit(limiter, apiMiddleware.RateLimitRule{
		Scope:     "global",
		PerMinute: app.config.RateLimit.GlobalPerMinute,
		Skip:      apiMiddleware.SkipPathPrefixes(app.config.Cache.URLPrefix+"/", "/api/gallery", "/health"),
	}))

	generateHandler := api.NewGenerateHandler(app.orchestrator, app.sessions, app.provider.Model(), app.logger)
	galleryHandler := api.NewGalleryHandler(app.store, app.logger)
	authHandler := api.NewAuthHandler(app.authenticator, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.With(apiMiddleware.RateLimit(limiter, apiMiddleware.RateLimitRule{
			Scope:     "generate",
			PerMinute: app.config.RateLimit.GeneratePerMinute,
		})).Post("/generate", generateHandler.Generate)
		r.Post("/generate/cancel", generateHandler.Cancel)

		r.Get("/gallery", galleryHandler.List)
		r.With(authMiddleware.RequireAdmin).Delete("/gallery/{filename}", galleryHandler.Delete)

		r.Post("/auth/token", authHandler.Token)
	})

	r.Get("/health", api.Health)
	r.Handle("/metrics", app.metrics.Handler())
	if app.config.Server.Debug {
		r.Get("/debug/cache", galleryHandler.DebugCache)
	}

	r.Handle("/*", app.staticHandler())

	return r
}

// staticHandler serves the built web client from the public directory and
// the generated images from the cache directory under the cache URL prefix.
func (app *application) staticHandler() http.Handler {
	prefix := strings.TrimSuffix(app.config.Cache.URLPrefix, "/") + "/"
	cache := http.StripPrefix(prefix, http.FileServer(cacheFS{http.Dir(app.store.Dir())}))
	public := http.FileServer(noDirFS{http.Dir(app.config.Server.PublicDir)})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, prefix) {
			cache.ServeHTTP(w, r)
			return
		}
		public.ServeHTTP(w, r)
	})
	return apiMiddleware.CacheControl(prefix, cacheControlValue)(handler)
}

// cacheFS exposes only the generated images in the cache directory.
// Metadata sidecars, temporary files and directories are not served.
type cacheFS struct {
	fs http.FileSystem
}

func (c cacheFS) Open(name string) (http.File, error) {
	if !filecache.ValidFilename(strings.TrimPrefix(name, "/")) {
		return nil, fs.ErrNotExist
	}
	return c.fs.Open(name)
}

// noDirFS hides directory listings.
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		index, err := n.fs.Open(strings.TrimSuffix(name, "/") + "/index.html")
		if err != nil {
			f.Close()
			return nil, err
		}
		index.Close()
	}
	return f, nil
}

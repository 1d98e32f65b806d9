package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	apiMiddleware "github.com/phrazzld/vertex-studio/internal/api/middleware"
	"github.com/phrazzld/vertex-studio/internal/config"
	"github.com/phrazzld/vertex-studio/internal/generation"
	"github.com/phrazzld/vertex-studio/internal/platform/filecache"
	"github.com/phrazzld/vertex-studio/internal/platform/gemini"
	"github.com/phrazzld/vertex-studio/internal/platform/metrics"
	"github.com/phrazzld/vertex-studio/internal/platform/ratelimit"
	"github.com/phrazzld/vertex-studio/internal/service/auth"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	provider     generation.Provider
	store        *filecache.Store
	orchestrator *generation.Orchestrator
	sessions     *generation.SessionRegistry
	metrics      *metrics.Metrics

	redisClient *redis.Client
	limiter     apiMiddleware.Limiter

	jwtService    auth.JWTService
	authenticator *auth.AdminAuthenticator
}

// newApplication creates the Vertex AI provider and assembles the application
// around it.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	provider, err := gemini.NewProvider(ctx, logger.With("component", "gemini_provider"), gemini.Config{
		ProjectID:           cfg.Vertex.ProjectID,
		Location:            cfg.Vertex.Location,
		APIKey:              cfg.Vertex.APIKey,
		Model:               cfg.Vertex.Model,
		RequestTimeout:      cfg.Vertex.RequestTimeout(),
		CompressReferences:  cfg.Vertex.CompressReferences,
		CompressionQuality:  cfg.Vertex.CompressionQuality,
		CompressionMinBytes: cfg.Vertex.CompressionMinBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image provider: %w", err)
	}
	logger.Info("image provider initialized",
		"model", provider.Model(),
		"location", cfg.Vertex.Location)

	return assembleApplication(ctx, cfg, logger, provider)
}

// assembleApplication wires every dependency that does not talk to the
// provider's backend. On error, anything already opened is closed.
func assembleApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	provider generation.Provider,
) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		provider: provider,
		sessions: generation.NewSessionRegistry(),
	}

	var err error
	app.store, err = filecache.New(cfg.Cache.Dir, cfg.Cache.URLPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image cache: %w", err)
	}

	app.metrics, err = metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	policy := generation.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Vertex.RetryMaxAttempts
	policy.InitialDelay = cfg.Vertex.RetryInitialDelay

	app.orchestrator, err = generation.NewOrchestrator(
		provider,
		app.store,
		logger,
		generation.WithObserver(app.metrics),
		generation.WithRetryPolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if err := app.setupRateLimiter(ctx); err != nil {
		return nil, err
	}

	if err := app.setupAuth(); err != nil {
		app.cleanup()
		return nil, err
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// setupRateLimiter connects to Redis when rate limiting is enabled and a
// URL is configured. Without a URL, limits are enforced per process.
func (app *application) setupRateLimiter(ctx context.Context) error {
	cfg := app.config
	if !cfg.RateLimit.Enabled {
		app.logger.Info("rate limiting disabled")
		return nil
	}

	if cfg.Redis.URL == "" {
		app.limiter = ratelimit.NewMemoryLimiter()
		app.logger.Info("rate limiting enabled with in-process limiter",
			"global_per_minute", cfg.RateLimit.GlobalPerMinute,
			"generate_per_minute", cfg.RateLimit.GeneratePerMinute)
		return nil
	}

	client, err := ratelimit.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	app.redisClient = client
	app.limiter = ratelimit.NewRateLimiter(client, "vertex-studio:ratelimit")
	app.logger.Info("rate limiting enabled with redis",
		"global_per_minute", cfg.RateLimit.GlobalPerMinute,
		"generate_per_minute", cfg.RateLimit.GeneratePerMinute)
	return nil
}

// setupAuth creates the JWT service and admin authenticator when a signing
// secret is configured. Without one, admin routes reject every request.
func (app *application) setupAuth() error {
	cfg := app.config.Auth
	if cfg.JWTSecret == "" {
		app.logger.Info("admin authentication disabled")
		return nil
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.authenticator = auth.NewAdminAuthenticator(app.jwtService, auth.NewBcryptVerifier(), cfg.AdminKeyHash)
	app.logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.TokenLifetimeMinutes,
		"admin_login_enabled", app.authenticator.Enabled())
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
		app.redisClient = nil
	}

	app.logger.Info("application shutdown completed")
}

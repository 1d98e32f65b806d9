// Package main implements the entry point for the vertex-studio server,
// which proxies image generation to Vertex AI, caches the results and
// serves them back through a gallery alongside the web client.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/vertex-studio/internal/config"
	"github.com/phrazzld/vertex-studio/internal/platform/logger"
)

// main is the entry point for the vertex-studio server.
// It loads configuration, sets up logging, wires dependencies and runs the
// HTTP server until SIGINT or SIGTERM.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("vertex-studio: %v", err)
	}
}

// run performs the startup sequence and blocks until the server stops.
func run(ctx context.Context) error {
	cfg, l, err := initializeApp()
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.Run(ctx)
}

// initializeApp loads configuration and sets up the logger.
// Returns the loaded config, the configured logger and any initialization error.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"debug", cfg.Server.Debug,
		"site_url", cfg.Site.URL,
		"site_name", cfg.Site.Name)
	l.Debug("provider configuration",
		"project_id_present", cfg.Vertex.ProjectID != "",
		"api_key_present", cfg.Vertex.APIKey != "",
		"location", cfg.Vertex.Location,
		"model", cfg.Vertex.Model)

	return cfg, l, nil
}

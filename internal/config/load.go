package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key read from the environment.
const EnvPrefix = "STUDIO"

// envAliases maps configuration keys to additional, unprefixed environment
// variable names accepted for compatibility with existing deployments.
var envAliases = map[string]string{
	"server.port":               "PORT",
	"server.debug":              "DEBUG",
	"vertex.project_id":         "GOOGLE_CLOUD_PROJECT",
	"vertex.location":           "GOOGLE_CLOUD_LOCATION",
	"vertex.api_key":            "GEMINI_API_KEY",
	"vertex.model":              "VERTEX_IMAGE_MODEL",
	"vertex.request_timeout_ms": "REQUEST_TIMEOUT_MS",
	"site.url":                  "SITE_URL",
	"site.name":                 "SITE_NAME",
}

// Load configuration from environment variables and optionally config files.
// A .env file in the working directory is loaded first when present.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("studio")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vertex-studio")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", alias, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MinJWTSecretLength is the shortest accepted HMAC signing secret.
const MinJWTSecretLength = 32

// ErrWeakJWTSecret is returned when a configured JWT secret is too short.
var ErrWeakJWTSecret = errors.New("auth.jwt_secret must be at least 32 characters")

// Validate checks cfg against its struct tags and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Auth.JWTSecret != "" && len(cfg.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("config validation failed: %w", ErrWeakJWTSecret)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.public_dir", "public")
	v.SetDefault("server.body_limit_mb", 25)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("vertex.project_id", "")
	v.SetDefault("vertex.location", "us-central1")
	v.SetDefault("vertex.api_key", "")
	v.SetDefault("vertex.model", "gemini-2.5-flash-image-preview")
	v.SetDefault("vertex.request_timeout_ms", 60000)
	v.SetDefault("vertex.retry_max_attempts", 3)
	v.SetDefault("vertex.retry_initial_delay", "600ms")
	v.SetDefault("vertex.compress_references", true)
	v.SetDefault("vertex.compression_quality", 85)
	v.SetDefault("vertex.compression_min_bytes", 1<<20)

	v.SetDefault("cache.dir", "public/cache")
	v.SetDefault("cache.url_prefix", "/cache")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.global_per_minute", 100)
	v.SetDefault("rate_limit.generate_per_minute", 10)

	v.SetDefault("redis.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_key_hash", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("site.url", "")
	v.SetDefault("site.name", "")
}

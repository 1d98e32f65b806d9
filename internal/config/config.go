package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Vertex    VertexConfig    `mapstructure:"vertex" validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Site      SiteConfig      `mapstructure:"site"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port      int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel  string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	Debug     bool   `mapstructure:"debug"`
	PublicDir string `mapstructure:"public_dir" validate:"required"`
	// BodyLimitMB caps request bodies; reference images arrive inline as data URLs.
	BodyLimitMB       int           `mapstructure:"body_limit_mb" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// VertexConfig contains the image provider settings.
type VertexConfig struct {
	ProjectID string `mapstructure:"project_id" validate:"required_without=APIKey"`
	Location  string `mapstructure:"location" validate:"required"`
	// APIKey selects the Gemini API backend instead of Vertex AI.
	APIKey           string `mapstructure:"api_key"`
	Model            string `mapstructure:"model" validate:"required"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms" validate:"gt=0"`

	RetryMaxAttempts    int           `mapstructure:"retry_max_attempts" validate:"gte=1,lte=10"`
	RetryInitialDelay   time.Duration `mapstructure:"retry_initial_delay" validate:"gt=0"`
	CompressReferences  bool          `mapstructure:"compress_references"`
	CompressionQuality  int           `mapstructure:"compression_quality" validate:"gte=1,lte=100"`
	CompressionMinBytes int           `mapstructure:"compression_min_bytes" validate:"gte=0"`
}

// RequestTimeout returns the per-call provider timeout.
func (c VertexConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// CacheConfig contains settings for the generated-image cache directory.
type CacheConfig struct {
	Dir       string `mapstructure:"dir" validate:"required"`
	URLPrefix string `mapstructure:"url_prefix" validate:"required,startswith=/"`
}

// RateLimitConfig contains the per-client request limits.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	GlobalPerMinute   int  `mapstructure:"global_per_minute" validate:"gte=0"`
	GeneratePerMinute int  `mapstructure:"generate_per_minute" validate:"gte=0"`
}

// RedisConfig contains the connection settings for the rate limiter backend.
// Rate limiting is disabled when URL is empty.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains all authentication and authorization settings.
// Gallery deletion is disabled unless AdminKeyHash is set.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required_with=AdminKeyHash"`
	AdminKeyHash         string `mapstructure:"admin_key_hash"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0,lte=1440"`
}

// SiteConfig identifies the public deployment.
type SiteConfig struct {
	URL  string `mapstructure:"url" validate:"omitempty,url"`
	Name string `mapstructure:"name"`
}

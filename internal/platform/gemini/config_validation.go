package gemini

import (
	"fmt"
	"time"

	"github.com/phrazzld/vertex-studio/internal/generation"
)

// Config holds the settings of the Provider. It is built explicitly by the
// caller; the adapter never reads or modifies process environment variables.
type Config struct {
	// ProjectID selects the Vertex AI backend when set.
	ProjectID string
	// Location is the Vertex AI region, e.g. "us-central1".
	Location string
	// APIKey selects the Gemini API backend when ProjectID is empty.
	APIKey string
	// Model is the image model identifier.
	Model string
	// RequestTimeout bounds each provider call. Zero disables the timeout.
	RequestTimeout time.Duration

	// CompressReferences re-encodes reference images of at least
	// CompressionMinBytes as JPEG at CompressionQuality.
	CompressReferences  bool
	CompressionQuality  int
	CompressionMinBytes int
}

// validateConfig checks that the configuration is usable.
//
// Returns:
//   - An error wrapping generation.ErrInvalidConfig if validation fails, nil otherwise
func validateConfig(cfg Config) error {
	if cfg.ProjectID == "" && cfg.APIKey == "" {
		return fmt.Errorf("%w: either a Google Cloud project or a Gemini API key is required",
			generation.ErrInvalidConfig)
	}
	if cfg.ProjectID != "" && cfg.Location == "" {
		return fmt.Errorf("%w: location is required for Vertex AI", generation.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("%w: request timeout cannot be negative", generation.ErrInvalidConfig)
	}
	if cfg.CompressReferences && (cfg.CompressionQuality < 1 || cfg.CompressionQuality > 100) {
		return fmt.Errorf("%w: compression quality must be between 1 and 100", generation.ErrInvalidConfig)
	}
	return nil
}

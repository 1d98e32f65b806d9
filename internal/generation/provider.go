package generation

import (
	"context"

	"github.com/phrazzld/vertex-studio/internal/domain"
)

// ProviderRequest is a single-image call to the provider.
type ProviderRequest struct {
	Prompt          string
	Mode            domain.Mode
	ReferenceImages []domain.ImagePayload
	AspectRatio     string
}

// Provider defines the interface for producing one image per call.
// Implementations return failures as *ProviderError so that the Retrier and
// Classify can read the status, code and message.
type Provider interface {
	// Generate produces exactly one image for the request.
	//
	// Parameters:
	//   - ctx: Context for the call; cancellation aborts the provider request
	//   - req: The prompt, mode and reference images
	//
	// Returns:
	//   - The generated image
	//   - A *ProviderError on failure, or the context error when cancelled
	Generate(ctx context.Context, req ProviderRequest) (domain.ImagePayload, error)

	// Model returns the model identifier used for generation.
	Model() string
}

// ReferencePreparer is implemented by providers that transform reference
// images before use, such as re-encoding large uploads. The orchestrator calls
// it once per request, before the first provider call, so the work is not
// repeated for every image and retry.
type ReferencePreparer interface {
	PrepareReferences(ctx context.Context, refs []domain.ImagePayload) []domain.ImagePayload
}

// ImageStore persists generated images and returns their public reference.
type ImageStore interface {
	Save(ctx context.Context, image domain.ImagePayload, meta domain.ImageMetadata) (string, error)
}

// Observer receives orchestration events. It is used for metrics.
type Observer interface {
	// GenerationFinished reports the outcome of a request: "success",
	// "canceled", or the ErrorKind of a classified failure.
	GenerationFinished(mode domain.Mode, count int, outcome string, seconds float64)
	// RetryScheduled reports a retry of a provider call after a transient status.
	RetryScheduled(status int)
	// ImageStored reports one persisted image.
	ImageStored()
}

type nopObserver struct{}

func (nopObserver) GenerationFinished(domain.Mode, int, string, float64) {}
func (nopObserver) RetryScheduled(int)                                    {}
func (nopObserver) ImageStored()                                          {}

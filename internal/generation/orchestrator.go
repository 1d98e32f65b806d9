package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/phrazzld/vertex-studio/internal/domain"
	"github.com/phrazzld/vertex-studio/internal/platform/logger"
	"golang.org/x/sync/errgroup"
)

// Orchestrator turns a validated GenerationRequest into N stored images,
// one provider call per image, under a bounded concurrency limit.
type Orchestrator struct {
	provider    Provider
	store       ImageStore
	logger      *slog.Logger
	observer    Observer
	policy      RetryPolicy
	retrierOpts []RetrierOption
	retrier     *Retrier
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an Observer for generation events.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy for provider calls.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

// WithRetrierOptions passes options through to the Retrier wrapping provider calls.
func WithRetrierOptions(opts ...RetrierOption) Option {
	return func(o *Orchestrator) {
		o.retrierOpts = append(o.retrierOpts, opts...)
	}
}

// WithClock replaces the time source used for metadata timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator.
//
// Parameters:
//   - provider: The image provider called once per requested image
//   - store: Where generated images are persisted
//   - logger: Base logger; request-scoped loggers from the context take precedence
//   - opts: Optional settings
//
// Returns:
//   - The orchestrator, or an error wrapping ErrInvalidConfig when a dependency is missing
func NewOrchestrator(provider Provider, store ImageStore, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: image store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		provider: provider,
		store:    store,
		logger:   logger.With(slog.String("component", "orchestrator")),
		observer: nopObserver{},
		policy:   DefaultRetryPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	retrierOpts := append([]RetrierOption{
		WithRetryHook(func(_ int, status int, _ time.Duration) {
			o.observer.RetryScheduled(status)
		}),
	}, o.retrierOpts...)
	o.retrier = NewRetrier(o.policy, logger, retrierOpts...)

	return o, nil
}

// ConcurrencyLimit returns how many provider calls may run at once for a
// request of the given size: larger batches run one at a time to stay under
// provider rate limits.
func ConcurrencyLimit(count int) int {
	if count > 2 {
		return 1
	}
	return 2
}

// Generate produces req.Count images and returns their public references in
// request order.
//
// The request is validated first; a *domain.ValidationError is returned
// without calling the provider. The first task that fails after retries
// decides the outcome: it is returned as a *ClassifiedError and no partial
// results are returned. Tasks that have not started by then are skipped.
// If ctx is cancelled the context error is returned unclassified.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := logger.FromContextOrDefault(ctx, o.logger).With(
		slog.String("mode", string(req.Mode)),
		slog.Int("image_count", req.Count),
	)
	start := o.now()
	limit := ConcurrencyLimit(req.Count)

	log.InfoContext(ctx, "starting generation",
		"concurrency", limit,
		"reference_images", len(req.ReferenceImages),
		"aspect_ratio", req.AspectRatio)

	refs := req.ReferenceImages
	if preparer, ok := o.provider.(ReferencePreparer); ok && req.Mode == domain.ModeImageToImage {
		refs = preparer.PrepareReferences(ctx, refs)
	}

	providerReq := ProviderRequest{
		Prompt:          req.Prompt,
		Mode:            req.Mode,
		ReferenceImages: refs,
		AspectRatio:     req.AspectRatio,
	}

	images := make([]string, req.Count)
	var failed atomic.Bool

	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < req.Count; i++ {
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			ref, err := o.runTask(ctx, log, i, req, providerReq)
			if err != nil {
				failed.Store(true)
				return err
			}
			images[i] = ref
			return nil
		})
	}
	err := g.Wait()
	elapsed := o.now().Sub(start).Seconds()

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.InfoContext(ctx, "generation canceled", "error", ctxErr)
		o.observer.GenerationFinished(req.Mode, req.Count, "canceled", elapsed)
		return nil, fmt.Errorf("generation canceled: %w", ctxErr)
	}

	if err != nil {
		classified := Classify(err, req.Count)
		log.ErrorContext(ctx, "generation failed",
			"error_type", string(classified.Kind),
			"retryable", classified.Retryable,
			"original_status", classified.OriginalStatus,
			"original_message", classified.OriginalMessage,
			"duration_seconds", elapsed)
		o.observer.GenerationFinished(req.Mode, req.Count, string(classified.Kind), elapsed)
		return nil, classified
	}

	log.InfoContext(ctx, "generation succeeded", "duration_seconds", elapsed)
	o.observer.GenerationFinished(req.Mode, req.Count, "success", elapsed)
	return images, nil
}

// runTask generates and stores one image.
func (o *Orchestrator) runTask(
	ctx context.Context,
	log *slog.Logger,
	index int,
	req domain.GenerationRequest,
	providerReq ProviderRequest,
) (string, error) {
	log = log.With(slog.Int("task", index))

	image, err := Retry(ctx, o.retrier, func(ctx context.Context) (domain.ImagePayload, error) {
		return o.provider.Generate(ctx, providerReq)
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WarnContext(ctx, "image task failed", "error", err)
		}
		return "", err
	}

	ref, err := o.store.Save(ctx, image, domain.ImageMetadata{
		Prompt:      req.Prompt,
		Mode:        req.Mode,
		Model:       o.provider.Model(),
		AspectRatio: req.AspectRatio,
		MIMEType:    image.MIMEType,
		CreatedAt:   o.now().UTC(),
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to store generated image", "error", err)
		return "", fmt.Errorf("failed to store generated image: %w", err)
	}

	o.observer.ImageStored()
	log.DebugContext(ctx, "image task finished", "path", ref)
	return ref, nil
}

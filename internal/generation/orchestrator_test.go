package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/vertex-studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns results from fn, keyed by the 0-based call number.
type fakeProvider struct {
	fn func(ctx context.Context, call int) (domain.ImagePayload, error)

	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (p *fakeProvider) Generate(ctx context.Context, req ProviderRequest) (domain.ImagePayload, error) {
	call := int(p.calls.Add(1)) - 1
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		current := p.maxActive.Load()
		if n <= current || p.maxActive.CompareAndSwap(current, n) {
			break
		}
	}
	return p.fn(ctx, call)
}

func (p *fakeProvider) Model() string {
	return "test-image-model"
}

func pngPayload(label string) domain.ImagePayload {
	return domain.ImagePayload{MIMEType: "image/png", Data: []byte(label)}
}

// fakeStore returns "/cache/<payload data>.png" for each saved image.
type fakeStore struct {
	mu    sync.Mutex
	metas []domain.ImageMetadata
	err   error
}

func (s *fakeStore) Save(ctx context.Context, image domain.ImagePayload, meta domain.ImageMetadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.metas = append(s.metas, meta)
	return fmt.Sprintf("/cache/%s.%s", image.Data, image.Extension()), nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	retries  []int
	stored   int
}

func (o *recordingObserver) GenerationFinished(_ domain.Mode, _ int, outcome string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) RetryScheduled(status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, status)
}

func (o *recordingObserver) ImageStored() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stored++
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestOrchestrator(t *testing.T, provider Provider, store ImageStore, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithRetrierOptions(WithSleep(noSleep))}, opts...)
	o, err := NewOrchestrator(provider, store, nil, opts...)
	require.NoError(t, err)
	return o
}

func mustRequest(t *testing.T, prompt string, count int) domain.GenerationRequest {
	t.Helper()
	req, err := domain.NewGenerationRequest(prompt, count, domain.ModeTextToImage, nil, "")
	require.NoError(t, err)
	return req
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewOrchestrator(nil, &fakeStore{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOrchestrator(&fakeProvider{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGenerate_SequentialBatchPreservesOrder(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fn: func(_ context.Context, call int) (domain.ImagePayload, error) {
		return pngPayload(fmt.Sprintf("img-%d", call)), nil
	}}
	store := &fakeStore{}
	observer := &recordingObserver{}
	o := newTestOrchestrator(t, provider, store, WithObserver(observer))

	images, err := o.Generate(context.Background(), mustRequest(t, "a lighthouse", 4))

	require.NoError(t, err)
	assert.Equal(t, []string{
		"/cache/img-0.png", "/cache/img-1.png", "/cache/img-2.png", "/cache/img-3.png",
	}, images)
	assert.Equal(t, int32(1), provider.maxActive.Load())
	assert.Equal(t, []string{"success"}, observer.outcomes)
	assert.Equal(t, 4, observer.stored)

	require.Len(t, store.metas, 4)
	assert.Equal(t, "a lighthouse", store.metas[0].Prompt)
	assert.Equal(t, domain.ModeTextToImage, store.metas[0].Mode)
	assert.Equal(t, "test-image-model", store.metas[0].Model)
	assert.Equal(t, "image/png", store.metas[0].MIMEType)
}

func TestGenerate_SmallBatchRunsConcurrently(t *testing.T) {
	t.Parallel()

	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	provider := &fakeProvider{fn: func(ctx context.Context, call int) (domain.ImagePayload, error) {
		arrived.Done()
		select {
		case <-release:
		case <-time.After(5 * time.Second):
			return domain.ImagePayload{}, errors.New("second task never started")
		}
		return pngPayload(fmt.Sprintf("img-%d", call)), nil
	}}
	o := newTestOrchestrator(t, provider, &fakeStore{})

	images, err := o.Generate(context.Background(), mustRequest(t, "two cats", 2))

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/cache/img-0.png", "/cache/img-1.png"}, images)
	assert.Equal(t, int32(2), provider.maxActive.Load())
}

func TestGenerate_ValidationFailsBeforeProviderCall(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fn: func(context.Context, int) (domain.ImagePayload, error) {
		return pngPayload("x"), nil
	}}
	o := newTestOrchestrator(t, provider, &fakeStore{})

	testCases := []struct {
		name    string
		req     domain.GenerationRequest
		message string
	}{
		{"empty prompt", domain.GenerationRequest{Prompt: "  ", Count: 1, Mode: domain.ModeTextToImage}, "Prompt is required"},
		{"count too high", domain.GenerationRequest{Prompt: "p", Count: 7, Mode: domain.ModeTextToImage}, "n must be between 1 and 6"},
		{"count zero", domain.GenerationRequest{Prompt: "p", Count: 0, Mode: domain.ModeTextToImage}, "n must be between 1 and 6"},
		{
			"image-to-image without references",
			domain.GenerationRequest{Prompt: "p", Count: 1, Mode: domain.ModeImageToImage},
			"imageDataUrls is required for image-to-image",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			images, err := o.Generate(context.Background(), tc.req)

			assert.Nil(t, images)
			var validationErr *domain.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tc.message, validationErr.Message)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Zero(t, provider.calls.Load())
}

func TestGenerate_ThirdTaskSystemErrorFailsWholeRequest(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fn: func(_ context.Context, call int) (domain.ImagePayload, error) {
		if call == 2 {
			return domain.ImagePayload{}, &ProviderError{Status: 500, Message: "Internal error encountered."}
		}
		return pngPayload(fmt.Sprintf("img-%d", call)), nil
	}}
	observer := &recordingObserver{}
	o := newTestOrchestrator(t, provider, &fakeStore{}, WithObserver(observer))

	images, err := o.Generate(context.Background(), mustRequest(t, "three dogs", 3))

	assert.Nil(t, images)
	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindSystem, classified.Kind)
	assert.True(t, classified.Retryable)
	assert.Equal(t, 500, classified.HTTPStatus())
	assert.Equal(t, int32(3), provider.calls.Load())
	assert.Equal(t, []string{"system_error"}, observer.outcomes)
}

func TestGenerate_RetryableFailureExhaustsAttemptsAndSkipsRemainingTasks(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fn: func(context.Context, int) (domain.ImagePayload, error) {
		return domain.ImagePayload{}, &ProviderError{Status: 429, Message: "Too Many Requests"}
	}}
	observer := &recordingObserver{}
	o := newTestOrchestrator(t, provider, &fakeStore{}, WithObserver(observer))

	_, err := o.Generate(context.Background(), mustRequest(t, "a storm", 4))

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindRateLimit, classified.Kind)
	assert.Contains(t, classified.Suggestions, "Reduce the number of images to 2")
	assert.Equal(t, int32(3), provider.calls.Load(), "one task retried three times, the rest skipped")
	assert.Equal(t, []int{429, 429}, observer.retries)
}

func TestGenerate_TransientFailureRecovers(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fn: func(_ context.Context, call int) (domain.ImagePayload, error) {
		if call < 2 {
			return domain.ImagePayload{}, &ProviderError{Message: "busy", Response: &ResponseInfo{Status: 503}}
		}
		return pngPayload("ok"), nil
	}}
	o := newTestOrchestrator(t, provider, &fakeStore{})

	images, err := o.Generate(context.Background(), mustRequest(t, "sunrise", 1))

	require.NoError(t, err)
	assert.Equal(t, []string{"/cache/ok.png"}, images)
	assert.Equal(t, int32(3), provider.calls.Load())
}

func TestGenerate_InvalidResponseIsUnknownAndNotRetried(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fn: func(context.Context, int) (domain.ImagePayload, error) {
		return domain.ImagePayload{}, &ProviderError{
			Code:    "invalid_response",
			Message: "response contained no image data",
			Err:     ErrInvalidResponse,
		}
	}}
	o := newTestOrchestrator(t, provider, &fakeStore{})

	_, err := o.Generate(context.Background(), mustRequest(t, "a boat", 1))

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindUnknown, classified.Kind)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestGenerate_StoreFailureIsClassified(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fn: func(context.Context, int) (domain.ImagePayload, error) {
		return pngPayload("img"), nil
	}}
	store := &fakeStore{err: errors.New("disk full")}
	o := newTestOrchestrator(t, provider, store)

	_, err := o.Generate(context.Background(), mustRequest(t, "a forest", 1))

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindUnknown, classified.Kind)
	assert.Contains(t, classified.UserMessage, "failed to store generated image: disk full")
}

func TestGenerate_CanceledContextIsNotClassified(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{fn: func(ctx context.Context, call int) (domain.ImagePayload, error) {
		cancel()
		<-ctx.Done()
		return domain.ImagePayload{}, ctx.Err()
	}}
	observer := &recordingObserver{}
	o := newTestOrchestrator(t, provider, &fakeStore{}, WithObserver(observer))

	images, err := o.Generate(ctx, mustRequest(t, "a river", 3))

	assert.Nil(t, images)
	assert.ErrorIs(t, err, context.Canceled)
	var classified *ClassifiedError
	assert.False(t, errors.As(err, &classified))
	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, []string{"canceled"}, observer.outcomes)
}

func TestConcurrencyLimit(t *testing.T) {
	t.Parallel()

	expected := map[int]int{1: 2, 2: 2, 3: 1, 4: 1, 5: 1, 6: 1}
	for count, limit := range expected {
		assert.Equal(t, limit, ConcurrencyLimit(count), "count %d", count)
	}
}

// preparingProvider records PrepareReferences calls and the references each
// Generate call receives.
type preparingProvider struct {
	*fakeProvider

	prepared atomic.Int32
	mu       sync.Mutex
	seen     [][]domain.ImagePayload
}

func (p *preparingProvider) PrepareReferences(_ context.Context, refs []domain.ImagePayload) []domain.ImagePayload {
	p.prepared.Add(1)
	out := make([]domain.ImagePayload, len(refs))
	for i, ref := range refs {
		out[i] = domain.ImagePayload{MIMEType: "image/jpeg", Data: append([]byte("small-"), ref.Data...)}
	}
	return out
}

func (p *preparingProvider) Generate(ctx context.Context, req ProviderRequest) (domain.ImagePayload, error) {
	p.mu.Lock()
	p.seen = append(p.seen, req.ReferenceImages)
	p.mu.Unlock()
	return p.fakeProvider.Generate(ctx, req)
}

func TestGenerate_PreparesReferencesOncePerRequest(t *testing.T) {
	t.Parallel()

	provider := &preparingProvider{fakeProvider: &fakeProvider{fn: func(_ context.Context, call int) (domain.ImagePayload, error) {
		if call == 0 {
			return domain.ImagePayload{}, &ProviderError{Status: 503, Message: "busy"}
		}
		return pngPayload(fmt.Sprintf("img-%d", call)), nil
	}}}
	o := newTestOrchestrator(t, provider, &fakeStore{})

	refs := []domain.ImagePayload{{MIMEType: "image/png", Data: []byte("ref")}}
	req, err := domain.NewGenerationRequest("restyle", 3, domain.ModeImageToImage, refs, "")
	require.NoError(t, err)

	images, err := o.Generate(context.Background(), req)

	require.NoError(t, err)
	assert.Len(t, images, 3)
	assert.Equal(t, int32(1), provider.prepared.Load())
	require.Len(t, provider.seen, 4, "three images plus one retry")
	for _, got := range provider.seen {
		assert.Equal(t, []domain.ImagePayload{{MIMEType: "image/jpeg", Data: []byte("small-ref")}}, got)
	}
}

func TestGenerate_TextToImageSkipsReferencePreparation(t *testing.T) {
	t.Parallel()

	provider := &preparingProvider{fakeProvider: &fakeProvider{fn: func(context.Context, int) (domain.ImagePayload, error) {
		return pngPayload("img"), nil
	}}}
	o := newTestOrchestrator(t, provider, &fakeStore{})

	_, err := o.Generate(context.Background(), mustRequest(t, "plain", 1))

	require.NoError(t, err)
	assert.Equal(t, int32(0), provider.prepared.Load())
}

package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/vertex-studio/internal/domain"
	"github.com/phrazzld/vertex-studio/internal/generation"
	"github.com/phrazzld/vertex-studio/internal/platform/imgutil"
	"google.golang.org/genai"
)

// responseModalities requests both text and image output; image models
// reject IMAGE-only requests.
var responseModalities = []string{"TEXT", "IMAGE"}

// blockingFinishReasons are candidate finish reasons that mean the output was
// withheld by safety filtering.
var blockingFinishReasons = map[genai.FinishReason]struct{}{
	genai.FinishReason("SAFETY"):                   {},
	genai.FinishReason("PROHIBITED_CONTENT"):       {},
	genai.FinishReason("BLOCKLIST"):                {},
	genai.FinishReason("SPII"):                     {},
	genai.FinishReason("IMAGE_SAFETY"):             {},
	genai.FinishReason("IMAGE_PROHIBITED_CONTENT"): {},
}

// contentGenerator is the subset of the genai client used by the Provider.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Provider implements generation.Provider using the genai client.
type Provider struct {
	logger *slog.Logger
	config Config
	models contentGenerator
}

var (
	_ generation.Provider          = (*Provider)(nil)
	_ generation.ReferencePreparer = (*Provider)(nil)
)

// NewProvider creates a Provider backed by Vertex AI when cfg.ProjectID is
// set, or by the Gemini API otherwise.
//
// Parameters:
//   - ctx: Context for client construction
//   - logger: A structured logger for operation logging
//   - cfg: Provider configuration
//
// Returns:
//   - A properly initialized Provider or an error wrapping generation.ErrInvalidConfig
func NewProvider(ctx context.Context, logger *slog.Logger, cfg Config) (*Provider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.ProjectID != "" {
		clientConfig = &genai.ClientConfig{
			Project:  cfg.ProjectID,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %v", generation.ErrInvalidConfig, err)
	}

	return newProvider(logger, cfg, client.Models)
}

func newProvider(logger *slog.Logger, cfg Config, models contentGenerator) (*Provider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if models == nil {
		return nil, fmt.Errorf("%w: genai client cannot be nil", generation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		logger: logger.With(slog.String("component", "gemini_provider"), slog.String("model", cfg.Model)),
		config: cfg,
		models: models,
	}, nil
}

// Model returns the configured model identifier.
func (p *Provider) Model() string {
	return p.config.Model
}

// Generate requests one image from the model.
//
// Parameters:
//   - ctx: Context for the call; a per-call timeout is derived from it
//   - req: The prompt, mode and reference images
//
// Returns:
//   - The generated image
//   - A *generation.ProviderError on failure, or ctx's error when the caller cancelled
func (p *Provider) Generate(ctx context.Context, req generation.ProviderRequest) (domain.ImagePayload, error) {
	callCtx := ctx
	if p.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
	}

	contents := []*genai.Content{genai.NewContentFromParts(p.buildParts(ctx, req), genai.RoleUser)}
	genConfig := &genai.GenerateContentConfig{ResponseModalities: responseModalities}
	if req.AspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	p.logger.DebugContext(ctx, "sending image request",
		"mode", string(req.Mode),
		"prompt_length", len(req.Prompt),
		"reference_images", len(req.ReferenceImages),
		"aspect_ratio", req.AspectRatio)

	resp, err := p.models.GenerateContent(callCtx, p.config.Model, contents, genConfig)
	if err != nil {
		mapped := toProviderError(ctx, err)
		var providerErr *generation.ProviderError
		if errors.As(mapped, &providerErr) {
			p.logger.WarnContext(ctx, "image request failed",
				"status", providerErr.Status,
				"code", providerErr.Code)
		}
		return domain.ImagePayload{}, mapped
	}

	image, err := extractImage(resp)
	if err != nil {
		p.logger.WarnContext(ctx, "unusable image response", "error", err)
		return domain.ImagePayload{}, err
	}

	p.logger.DebugContext(ctx, "image received",
		"mime_type", image.MIMEType,
		"bytes", len(image.Data))
	return image, nil
}

// PrepareReferences drops reference images that are not images and, when
// compression is enabled, re-encodes large ones as JPEG. It runs once per
// request so retries and parallel calls reuse the result.
func (p *Provider) PrepareReferences(ctx context.Context, refs []domain.ImagePayload) []domain.ImagePayload {
	prepared := make([]domain.ImagePayload, 0, len(refs))
	for i, ref := range refs {
		mimeType := ref.MIMEType
		if mimeType == "" {
			mimeType = http.DetectContentType(ref.Data)
		}
		if !strings.HasPrefix(mimeType, "image/") || len(ref.Data) == 0 {
			p.logger.WarnContext(ctx, "skipping invalid reference image",
				"index", i,
				"mime_type", mimeType)
			continue
		}

		data := ref.Data
		if p.config.CompressReferences {
			var compressed bool
			data, mimeType, compressed = imgutil.ShrinkIfLarge(
				data, mimeType, p.config.CompressionMinBytes, p.config.CompressionQuality)
			if compressed {
				p.logger.DebugContext(ctx, "compressed reference image",
					"index", i,
					"original_bytes", len(ref.Data),
					"compressed_bytes", len(data))
			}
		}

		prepared = append(prepared, domain.ImagePayload{MIMEType: mimeType, Data: data})
	}
	return prepared
}

// buildParts assembles the prompt text followed by each reference image as
// inline data. References are expected to have passed PrepareReferences;
// any that still lack an image MIME type are skipped.
func (p *Provider) buildParts(ctx context.Context, req generation.ProviderRequest) []*genai.Part {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Mode != domain.ModeImageToImage {
		return parts
	}

	for i, ref := range req.ReferenceImages {
		if !strings.HasPrefix(ref.MIMEType, "image/") || len(ref.Data) == 0 {
			p.logger.WarnContext(ctx, "skipping invalid reference image",
				"index", i,
				"mime_type", ref.MIMEType)
			continue
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data}})
	}
	return parts
}

// extractImage validates the response shape and returns the first image.
//
// The expected shape is: at least one candidate, whose content has a part
// carrying inline data with a non-empty payload and an image MIME type.
// Safety blocks are reported as content-filter failures; any other deviation
// is an invalid response without a status.
func extractImage(resp *genai.GenerateContentResponse) (domain.ImagePayload, error) {
	if resp == nil {
		return domain.ImagePayload{}, invalidResponse("empty response")
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" &&
		resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return domain.ImagePayload{}, contentFiltered(
			fmt.Sprintf("prompt blocked by content filter: %s", resp.PromptFeedback.BlockReason))
	}

	if len(resp.Candidates) == 0 {
		return domain.ImagePayload{}, invalidResponse("response contained no candidates")
	}

	var blockedReason genai.FinishReason
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part == nil || part.InlineData == nil {
					continue
				}
				blob := part.InlineData
				if len(blob.Data) > 0 && strings.HasPrefix(blob.MIMEType, "image/") {
					return domain.ImagePayload{MIMEType: blob.MIMEType, Data: blob.Data}, nil
				}
			}
		}
		if _, blocked := blockingFinishReasons[candidate.FinishReason]; blocked && blockedReason == "" {
			blockedReason = candidate.FinishReason
		}
	}

	if blockedReason != "" {
		return domain.ImagePayload{}, contentFiltered(
			fmt.Sprintf("image blocked by content filter: %s", blockedReason))
	}
	return domain.ImagePayload{}, invalidResponse("response contained no image data")
}

func invalidResponse(message string) error {
	return &generation.ProviderError{
		Code:    CodeInvalidResponse,
		Message: message,
		Err:     generation.ErrInvalidResponse,
	}
}

func contentFiltered(message string) error {
	return &generation.ProviderError{
		Status:  http.StatusBadRequest,
		Code:    CodeContentFiltered,
		Message: message,
		Err:     generation.ErrContentBlocked,
	}
}

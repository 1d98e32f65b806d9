package domain

import (
	"fmt"
	"strings"
)

// Bounds on the number of images a single request may ask for.
const (
	MinImageCount = 1
	MaxImageCount = 6
)

// Mode selects whether generation is conditioned on text only or also on
// reference images.
type Mode string

// Supported generation modes.
const (
	ModeTextToImage  Mode = "text-to-image"
	ModeImageToImage Mode = "image-to-image"
)

// ParseMode converts a wire value into a Mode. An empty value means
// text-to-image.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case "", ModeTextToImage:
		return ModeTextToImage, nil
	case ModeImageToImage:
		return ModeImageToImage, nil
	default:
		return "", NewValidationError("mode",
			fmt.Sprintf("mode must be %q or %q", ModeTextToImage, ModeImageToImage), ErrInvalidMode)
	}
}

// supportedAspectRatios lists the aspect ratios accepted by the image models.
var supportedAspectRatios = map[string]struct{}{
	"1:1": {}, "2:3": {}, "3:2": {}, "3:4": {}, "4:3": {},
	"4:5": {}, "5:4": {}, "9:16": {}, "16:9": {}, "21:9": {},
}

// GenerationRequest is a validated request to generate Count images from a
// prompt. It is created once per HTTP request and never mutated.
type GenerationRequest struct {
	Prompt          string
	Count           int
	Mode            Mode
	ReferenceImages []ImagePayload
	AspectRatio     string
}

// NewGenerationRequest builds and validates a GenerationRequest.
// Reference images are ignored in text-to-image mode.
//
// Returns a *ValidationError describing the first invalid field.
func NewGenerationRequest(
	prompt string,
	count int,
	mode Mode,
	referenceImages []ImagePayload,
	aspectRatio string,
) (GenerationRequest, error) {
	req := GenerationRequest{
		Prompt:      prompt,
		Count:       count,
		Mode:        mode,
		AspectRatio: aspectRatio,
	}
	if mode == ModeImageToImage && len(referenceImages) > 0 {
		req.ReferenceImages = append([]ImagePayload(nil), referenceImages...)
	}

	if err := req.Validate(); err != nil {
		return GenerationRequest{}, err
	}
	return req, nil
}

// Validate checks the request invariants: a non-empty prompt, a count within
// [MinImageCount, MaxImageCount], a known mode, reference images for
// image-to-image, and a supported aspect ratio when one is given.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return NewValidationError("prompt", "Prompt is required", ErrEmptyContent)
	}

	if r.Count < MinImageCount || r.Count > MaxImageCount {
		return NewValidationError("n",
			fmt.Sprintf("n must be between %d and %d", MinImageCount, MaxImageCount), nil)
	}

	switch r.Mode {
	case ModeTextToImage:
	case ModeImageToImage:
		if len(r.ReferenceImages) == 0 {
			return NewValidationError("imageDataUrls",
				"imageDataUrls is required for image-to-image", ErrEmptyContent)
		}
	default:
		return NewValidationError("mode",
			fmt.Sprintf("mode must be %q or %q", ModeTextToImage, ModeImageToImage), ErrInvalidMode)
	}

	if r.AspectRatio != "" {
		if _, ok := supportedAspectRatios[r.AspectRatio]; !ok {
			return NewValidationError("aspectRatio",
				fmt.Sprintf("aspectRatio %q is not supported", r.AspectRatio), nil)
		}
	}

	return nil
}

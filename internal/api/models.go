package api

import (
	"github.com/phrazzld/vertex-studio/internal/domain"
)

// SessionIDHeader identifies the browser session that issued a generation.
// A newer generation from the same session supersedes an older one.
const SessionIDHeader = "X-Session-ID"

// GenerateRequest defines the payload for the generation endpoint.
type GenerateRequest struct {
	Prompt string `json:"prompt"`

	// N is the number of images to generate. Defaults to 1 when omitted.
	N *int `json:"n,omitempty"`

	// Mode is "text-to-image" (default) or "image-to-image".
	Mode string `json:"mode,omitempty"`

	// ImageDataURLs are base64 data URLs of the reference images.
	// Entries that are not valid image data URLs are skipped.
	ImageDataURLs []string `json:"imageDataUrls,omitempty"`

	AspectRatio string `json:"aspectRatio,omitempty"`
}

// GenerateResponse is the success body of the generation endpoint.
// Error is always null; it is present for clients that check it.
type GenerateResponse struct {
	Images []string `json:"images"`
	Error  *string  `json:"error"`
}

// GenerateErrorResponse is the failure body of the generation endpoint.
// Validation failures only populate Images and Error.
type GenerateErrorResponse struct {
	Images      []string `json:"images"`
	Error       string   `json:"error"`
	ErrorType   string   `json:"errorType,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Retryable   *bool    `json:"retryable,omitempty"`
	TraceID     string   `json:"trace_id,omitempty"`
}

// CancelResponse reports whether a cancel request stopped a generation.
type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

// TokenRequest defines the payload for the admin token endpoint.
type TokenRequest struct {
	AdminKey string `json:"admin_key" validate:"required"`
}

// TokenResponse defines the successful response for the admin token endpoint.
type TokenResponse struct {
	// Token is the JWT to send as "Authorization: Bearer <token>"
	Token string `json:"token"`

	// ExpiresAt is the RFC 3339 timestamp when the token expires
	ExpiresAt string `json:"expires_at"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// toDomain converts the wire request into a validated GenerationRequest.
// It returns the number of reference images that were skipped as invalid.
func (r GenerateRequest) toDomain() (domain.GenerationRequest, int, error) {
	count := 1
	if r.N != nil {
		count = *r.N
	}

	mode, err := domain.ParseMode(r.Mode)
	if err != nil {
		return domain.GenerationRequest{}, 0, err
	}

	var (
		references []domain.ImagePayload
		skipped    int
	)
	if mode == domain.ModeImageToImage {
		for _, dataURL := range r.ImageDataURLs {
			image, err := domain.ParseDataURL(dataURL)
			if err != nil {
				skipped++
				continue
			}
			references = append(references, image)
		}
	}

	req, err := domain.NewGenerationRequest(r.Prompt, count, mode, references, r.AspectRatio)
	return req, skipped, err
}

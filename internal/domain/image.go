package domain

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// dataURLPattern matches base64 image data URLs such as
// "data:image/png;base64,iVBORw0...".
var dataURLPattern = regexp.MustCompile(`^data:image/([^;]+);base64,(.+)$`)

// ImagePayload is an encoded image together with its MIME type.
type ImagePayload struct {
	MIMEType string
	Data     []byte
}

// Extension returns the file extension used when persisting the payload.
// Unknown MIME types fall back to "png".
func (p ImagePayload) Extension() string {
	mime := strings.ToLower(p.MIMEType)
	switch {
	case strings.Contains(mime, "png"):
		return "png"
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return "jpg"
	case strings.Contains(mime, "webp"):
		return "webp"
	default:
		return "png"
	}
}

// ParseDataURL decodes a base64 image data URL into an ImagePayload.
// Returns an error wrapping ErrInvalidFormat if the URL is not an image data
// URL or its payload is not valid base64.
func ParseDataURL(dataURL string) (ImagePayload, error) {
	match := dataURLPattern.FindStringSubmatch(dataURL)
	if match == nil {
		return ImagePayload{}, fmt.Errorf("%w: not an image data URL", ErrInvalidFormat)
	}

	data, err := base64.StdEncoding.DecodeString(match[2])
	if err != nil {
		return ImagePayload{}, fmt.Errorf("%w: invalid base64 payload: %v", ErrInvalidFormat, err)
	}
	if len(data) == 0 {
		return ImagePayload{}, fmt.Errorf("%w: empty image payload", ErrEmptyContent)
	}

	return ImagePayload{MIMEType: "image/" + match[1], Data: data}, nil
}

// ImageMetadata describes how a stored image was produced. It is persisted
// alongside the image and surfaced by the gallery.
type ImageMetadata struct {
	Prompt      string    `json:"prompt"`
	Mode        Mode      `json:"mode"`
	Model       string    `json:"model,omitempty"`
	AspectRatio string    `json:"aspect_ratio,omitempty"`
	MIMEType    string    `json:"mime_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

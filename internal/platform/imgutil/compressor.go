// Package imgutil re-encodes reference images before they are sent to the
// image provider, keeping large uploads within the provider's request limits.
package imgutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
)

// JPEGMIMEType is the MIME type of CompressToJPEG output.
const JPEGMIMEType = "image/jpeg"

// MaxPixels is the largest canvas CompressToJPEG will decode. The header is
// checked before decoding, so a small file declaring a huge canvas is
// rejected without allocating it.
const MaxPixels = 40_000_000

// ErrTooLarge is returned when an image's declared dimensions exceed MaxPixels.
var ErrTooLarge = errors.New("image dimensions exceed pixel budget")

// CompressToJPEG decodes an image in any registered format (PNG, GIF, JPEG)
// and re-encodes it as JPEG at the given quality. Images with transparency
// are flattened onto a white background first, since JPEG has no alpha.
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten composites img over white unless it is known to be fully opaque.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, bounds, img, bounds.Min, draw.Over)
	return out
}

// ShrinkIfLarge compresses data to JPEG when it is at least minBytes long and
// the result is smaller than the input. Otherwise, including when the data
// cannot be decoded or declares more than MaxPixels, the input is returned
// unchanged.
//
// Returns the (possibly) new data, its MIME type, and whether it was compressed.
func ShrinkIfLarge(data []byte, mimeType string, minBytes, quality int) ([]byte, string, bool) {
	if len(data) < minBytes {
		return data, mimeType, false
	}

	compressed, err := CompressToJPEG(data, quality)
	if err != nil || len(compressed) >= len(data) {
		return data, mimeType, false
	}
	return compressed, JPEGMIMEType, true
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURL(t *testing.T) {
	t.Parallel()

	t.Run("valid png", func(t *testing.T) {
		t.Parallel()
		payload, err := ParseDataURL("data:image/png;base64,aGVsbG8=")
		require.NoError(t, err)
		assert.Equal(t, "image/png", payload.MIMEType)
		assert.Equal(t, []byte("hello"), payload.Data)
	})

	t.Run("non image data URL", func(t *testing.T) {
		t.Parallel()
		_, err := ParseDataURL("data:text/plain;base64,aGVsbG8=")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("plain URL", func(t *testing.T) {
		t.Parallel()
		_, err := ParseDataURL("https://example.com/cat.png")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("broken base64", func(t *testing.T) {
		t.Parallel()
		_, err := ParseDataURL("data:image/jpeg;base64,@@@")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestImagePayload_Extension(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"image/png":  "png",
		"image/jpeg": "jpg",
		"image/jpg":  "jpg",
		"image/webp": "webp",
		"image/gif":  "png",
		"":           "png",
	}
	for mime, want := range cases {
		assert.Equal(t, want, ImagePayload{MIMEType: mime}.Extension(), mime)
	}
}

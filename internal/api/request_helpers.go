package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/vertex-studio/internal/domain"
	"github.com/phrazzld/vertex-studio/internal/platform/filecache"
)

// maxSessionIDLength bounds the session header so it cannot bloat the registry.
const maxSessionIDLength = 128

// getSessionID returns the caller's session identifier, or "" when the
// header is absent or unusable.
//
// Parameters:
//   - r: The HTTP request
//
// Returns:
//   - The trimmed X-Session-ID header value, or an empty string
func getSessionID(r *http.Request) string {
	sessionID := strings.TrimSpace(r.Header.Get(SessionIDHeader))
	if len(sessionID) > maxSessionIDLength {
		return ""
	}
	return sessionID
}

// getPathFilename extracts a cache filename from the URL path parameters.
//
// Parameters:
//   - r: The HTTP request
//   - paramName: The name of the path parameter to extract
//
// Returns:
//   - (filename, nil): The filename if it is a plain cache filename
//   - ("", error): A validation error if the parameter is missing or unsafe
func getPathFilename(r *http.Request, paramName string) (string, error) {
	filename := chi.URLParam(r, paramName)
	if filename == "" {
		return "", domain.NewValidationError(paramName, "filename is required", domain.ErrValidation)
	}
	if !filecache.ValidFilename(filename) {
		return "", filecache.ErrInvalidFilename
	}
	return filename, nil
}

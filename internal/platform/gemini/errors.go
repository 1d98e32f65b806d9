package gemini

import (
	"context"
	"errors"
	"net/http"

	"github.com/phrazzld/vertex-studio/internal/generation"
	"google.golang.org/genai"
)

// Error codes attached to ProviderErrors raised by this package.
const (
	CodeContentFiltered = "content_filtered"
	CodeInvalidResponse = "invalid_response"
	CodeTimeout         = "timeout"
)

// numericStatuses are the HTTP codes passed through unchanged.
var numericStatuses = map[int]int{
	http.StatusUnauthorized:        http.StatusUnauthorized,
	http.StatusForbidden:           http.StatusForbidden,
	http.StatusNotFound:            http.StatusNotFound,
	http.StatusTooManyRequests:     http.StatusTooManyRequests,
	http.StatusBadRequest:          http.StatusBadRequest,
	http.StatusInternalServerError: http.StatusInternalServerError,
	http.StatusServiceUnavailable:  http.StatusServiceUnavailable,
	http.StatusGatewayTimeout:      http.StatusRequestTimeout,
}

// grpcStatuses maps canonical status names reported by Google APIs.
var grpcStatuses = map[string]int{
	"UNAUTHENTICATED":    http.StatusUnauthorized,
	"PERMISSION_DENIED":  http.StatusForbidden,
	"NOT_FOUND":          http.StatusNotFound,
	"RESOURCE_EXHAUSTED": http.StatusTooManyRequests,
	"INVALID_ARGUMENT":   http.StatusBadRequest,
	"INTERNAL":           http.StatusInternalServerError,
	"UNAVAILABLE":        http.StatusServiceUnavailable,
	"DEADLINE_EXCEEDED":  http.StatusRequestTimeout,
}

// mapStatus converts a genai API error code and status name into the
// HTTP-equivalent status used for retry and classification. The numeric code
// is consulted first; anything unrecognized maps to 500.
func mapStatus(code int, status string) int {
	if mapped, ok := numericStatuses[code]; ok {
		return mapped
	}
	if mapped, ok := grpcStatuses[status]; ok {
		return mapped
	}
	return http.StatusInternalServerError
}

// asAPIError extracts a genai.APIError whether it was returned by value or by pointer.
func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

// toProviderError translates an error from the genai client.
//
// Parameters:
//   - err: The error returned by GenerateContent
//   - parent: The caller's context, used to tell caller cancellation apart
//     from the per-call timeout
//
// Returns:
//   - The parent context's error when the caller cancelled
//   - A *generation.ProviderError otherwise
func toProviderError(parent context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &generation.ProviderError{
			Status:  http.StatusRequestTimeout,
			Code:    CodeTimeout,
			Message: "image request timed out",
			Err:     err,
		}
	}

	if apiErr, ok := asAPIError(err); ok {
		status := mapStatus(apiErr.Code, apiErr.Status)
		message := apiErr.Message
		if message == "" {
			message = "Vertex AI request failed"
		}
		return &generation.ProviderError{
			Status:   status,
			Message:  message,
			Code:     apiErr.Status,
			Response: &generation.ResponseInfo{Status: apiErr.Code},
			Err:      err,
		}
	}

	return &generation.ProviderError{
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Err:     err,
	}
}

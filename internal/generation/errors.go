package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation package
var (
	// ErrMaxRetries is returned when the retry loop ends without the
	// operation ever being attempted or returning.
	ErrMaxRetries = errors.New("max retries reached")

	// ErrInvalidResponse is returned when the provider response does not
	// contain an image in the expected shape
	ErrInvalidResponse = errors.New("invalid response from image provider")

	// ErrContentBlocked is returned when the provider blocks the prompt or the
	// generated image through its safety filters
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrSuperseded is returned when a newer generation from the same session
	// replaced the one in flight
	ErrSuperseded = errors.New("generation superseded by a newer request")

	// ErrInvalidConfig is returned when a generation component is constructed
	// with missing dependencies or settings
	ErrInvalidConfig = errors.New("invalid generation configuration")
)

// ResponseInfo carries details of the provider's HTTP response when the
// failure was reported through a response rather than on the error itself.
type ResponseInfo struct {
	Status int
	Body   string
}

// ProviderError is the failure shape returned by provider adapters.
// Status is the primary HTTP-equivalent status code (zero when unknown);
// Response.Status is consulted when Status is unset.
type ProviderError struct {
	Status   int
	Message  string
	Code     string
	Type     string
	Response *ResponseInfo
	Err      error
}

func (e *ProviderError) Error() string {
	status, _ := e.status()
	if status > 0 {
		return fmt.Sprintf("provider error (status %d): %s", status, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) status() (int, bool) {
	if e.Status > 0 {
		return e.Status, true
	}
	if e.Response != nil && e.Response.Status > 0 {
		return e.Response.Status, true
	}
	return 0, false
}

// StatusOf extracts the HTTP-equivalent status code from a failure, checking
// the ProviderError's own status before its nested response status.
// Returns false when the error carries no status.
func StatusOf(err error) (int, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.status()
	}
	return 0, false
}

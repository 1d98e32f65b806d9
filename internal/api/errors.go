package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/vertex-studio/internal/api/shared"
	"github.com/phrazzld/vertex-studio/internal/domain"
	"github.com/phrazzld/vertex-studio/internal/generation"
	"github.com/phrazzld/vertex-studio/internal/platform/filecache"
	"github.com/phrazzld/vertex-studio/internal/service/auth"
)

// StatusClientClosedRequest is used when the caller abandoned the request
// before a result was produced.
const StatusClientClosedRequest = 499

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var classified *generation.ClassifiedError
	if errors.As(err, &classified) {
		return classified.HTTPStatus()
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, auth.ErrInsufficientRole):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, filecache.ErrNotFound),
		errors.Is(err, auth.ErrAuthDisabled):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, generation.ErrSuperseded):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, filecache.ErrInvalidFilename):
		return http.StatusBadRequest

	case errors.Is(err, shared.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid admin key"

	case errors.Is(err, auth.ErrInsufficientRole):
		return "Admin access required"

	case errors.Is(err, auth.ErrAuthDisabled):
		return "Admin authentication is not enabled"

	case errors.Is(err, filecache.ErrNotFound):
		return "Image not found"

	case errors.Is(err, filecache.ErrInvalidFilename):
		return "Invalid image filename"

	case errors.Is(err, generation.ErrSuperseded):
		return "Generation superseded by a newer request"

	case errors.Is(err, shared.ErrBodyTooLarge):
		return "Request body too large"

	case errors.Is(err, context.Canceled):
		return "Request canceled"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'TokenRequest.AdminKey' Error:Field validation for 'AdminKey' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

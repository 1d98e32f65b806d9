package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrInsufficientRole indicates a valid token without the admin role
	ErrInsufficientRole = errors.New("token does not grant admin access")

	// ErrInvalidCredentials indicates the presented admin key does not match
	ErrInvalidCredentials = errors.New("invalid admin key")

	// ErrAuthDisabled indicates that no admin key or signing secret is configured
	ErrAuthDisabled = errors.New("admin authentication is not configured")
)

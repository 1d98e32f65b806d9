package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier defines the interface for comparing passwords.
type PasswordVerifier interface {
	// Compare compares a hashed password with its possible plaintext equivalent.
	// Returns nil on success, or an error on failure (e.g., mismatch).
	Compare(hashedPassword, password string) error
}

// BcryptVerifier implements PasswordVerifier using bcrypt.
type BcryptVerifier struct{}

// NewBcryptVerifier creates a new BcryptVerifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Compare implements the PasswordVerifier interface using bcrypt.
func (v *BcryptVerifier) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// AdminAuthenticator exchanges the operator's admin key for a short-lived token.
type AdminAuthenticator struct {
	tokens       JWTService
	verifier     PasswordVerifier
	adminKeyHash string
}

// NewAdminAuthenticator creates an authenticator checking keys against the
// bcrypt hash. A nil tokens service or an empty hash disables it.
func NewAdminAuthenticator(tokens JWTService, verifier PasswordVerifier, adminKeyHash string) *AdminAuthenticator {
	return &AdminAuthenticator{
		tokens:       tokens,
		verifier:     verifier,
		adminKeyHash: adminKeyHash,
	}
}

// Enabled reports whether admin login is configured.
func (a *AdminAuthenticator) Enabled() bool {
	return a != nil && a.tokens != nil && a.verifier != nil && a.adminKeyHash != ""
}

// Login verifies adminKey and issues a token.
//
// Returns:
//   - The signed token and its expiry
//   - ErrAuthDisabled, ErrInvalidCredentials, or a signing error
func (a *AdminAuthenticator) Login(ctx context.Context, adminKey string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}
	if adminKey == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := a.verifier.Compare(a.adminKeyHash, adminKey); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.tokens.GenerateToken(ctx)
}

// Tokens returns the token service used to validate issued tokens.
func (a *AdminAuthenticator) Tokens() JWTService {
	if a == nil {
		return nil
	}
	return a.tokens
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/vertex-studio/internal/api/shared"
	"github.com/phrazzld/vertex-studio/internal/platform/logger"
	"github.com/phrazzld/vertex-studio/internal/service/auth"
)

// AdminLogin exchanges an admin key for a token.
// *auth.AdminAuthenticator implements it.
type AdminLogin interface {
	Login(ctx context.Context, adminKey string) (string, time.Time, error)
}

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	authenticator AdminLogin
	logger        *slog.Logger
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(authenticator AdminLogin, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for AuthHandler")
	}

	return &AuthHandler{
		authenticator: authenticator,
		logger:        logger.With(slog.String("component", "auth_handler")),
	}
}

// Token handles POST /api/auth/token requests.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req TokenRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	token, expiresAt, err := h.authenticator.Login(r.Context(), req.AdminKey)
	if err != nil {
		status := MapErrorToStatusCode(err)
		var opts []shared.ResponseOption
		if errors.Is(err, auth.ErrInvalidCredentials) {
			opts = append(opts, shared.WithElevatedLogLevel())
		}
		shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err, opts...)
		return
	}

	log.Info("admin token issued", slog.Time("expires_at", expiresAt))
	shared.RespondWithJSON(w, r, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

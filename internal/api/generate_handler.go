package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/vertex-studio/internal/api/shared"
	"github.com/phrazzld/vertex-studio/internal/domain"
	"github.com/phrazzld/vertex-studio/internal/generation"
	"github.com/phrazzld/vertex-studio/internal/platform/logger"
	"github.com/phrazzld/vertex-studio/internal/redact"
)

// Generator produces the public references of generated images.
// *generation.Orchestrator implements it.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) ([]string, error)
}

// GenerateHandler handles image generation requests.
type GenerateHandler struct {
	generator Generator
	sessions  *generation.SessionRegistry
	model     string
	logger    *slog.Logger
}

// NewGenerateHandler creates a new GenerateHandler.
// A nil sessions registry disables supersession.
func NewGenerateHandler(
	generator Generator,
	sessions *generation.SessionRegistry,
	model string,
	logger *slog.Logger,
) *GenerateHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for GenerateHandler")
	}
	if sessions == nil {
		sessions = generation.NewSessionRegistry()
	}

	return &GenerateHandler{
		generator: generator,
		sessions:  sessions,
		model:     model,
		logger:    logger.With(slog.String("component", "generate_handler")),
	}
}

// Generate handles POST /api/generate requests.
// It validates the request, runs the generation under the caller's session
// and responds with the image references or a classified error.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var body GenerateRequest
	if err := shared.DecodeJSON(r, &body); err != nil {
		status := http.StatusBadRequest
		message := "Invalid request format"
		if errors.Is(err, shared.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
			message = GetSafeErrorMessage(err)
		}
		h.respondRejected(w, r, status, message, err)
		return
	}

	req, skipped, err := body.toDomain()
	sessionID := getSessionID(r)

	log.Info("generation request",
		slog.String("mode", string(req.Mode)),
		slog.Int("n", req.Count),
		slog.Int("prompt_length", len(body.Prompt)),
		slog.Int("reference_count", len(req.ReferenceImages)),
		slog.Int("skipped_references", skipped),
		slog.String("aspect_ratio", body.AspectRatio),
		slog.String("model", h.model),
		slog.Bool("has_session", sessionID != ""))

	if err != nil {
		h.respondRejected(w, r, http.StatusBadRequest, GetSafeErrorMessage(err), err)
		return
	}

	ctx, token, release := h.sessions.Begin(r.Context(), sessionID)
	defer release()

	images, err := h.generator.Generate(ctx, req)

	if !h.sessions.IsCurrent(sessionID, token) {
		log.Info("discarding superseded generation result",
			slog.Int("n", req.Count),
			slog.Bool("failed", err != nil))
		h.respondFailure(w, r, http.StatusConflict, GenerateErrorResponse{
			Error:     GetSafeErrorMessage(generation.ErrSuperseded),
			ErrorType: "superseded",
			Retryable: boolPtr(false),
		}, generation.ErrSuperseded)
		return
	}

	if err != nil {
		h.handleGenerationError(w, r, req, err)
		return
	}

	log.Info("generation completed",
		slog.String("mode", string(req.Mode)),
		slog.Int("images", len(images)))
	shared.RespondWithJSON(w, r, http.StatusOK, GenerateResponse{Images: images})
}

// Cancel handles POST /api/generate/cancel requests. It cancels the in-flight
// generation of the caller's session, if any.
func (h *GenerateHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sessionID := getSessionID(r)
	if sessionID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, SessionIDHeader+" header required")
		return
	}

	canceled := h.sessions.Cancel(sessionID)
	logger.FromContextOrDefault(r.Context(), h.logger).Info("generation cancel requested",
		slog.Bool("canceled", canceled))
	shared.RespondWithJSON(w, r, http.StatusOK, CancelResponse{Canceled: canceled})
}

// handleGenerationError writes the failure envelope for a generation error.
// Classified errors carry their own status; anything else is classified here
// so the client always receives an error kind and suggestions.
func (h *GenerateHandler) handleGenerationError(
	w http.ResponseWriter,
	r *http.Request,
	req domain.GenerationRequest,
	err error,
) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.respondRejected(w, r, http.StatusBadRequest, validationErr.Error(), err)
		return
	case errors.Is(err, context.Canceled):
		h.respondFailure(w, r, StatusClientClosedRequest, GenerateErrorResponse{
			Error:     GetSafeErrorMessage(err),
			ErrorType: "canceled",
			Retryable: boolPtr(true),
		}, err)
		return
	}

	var classified *generation.ClassifiedError
	if !errors.As(err, &classified) {
		classified = generation.Classify(err, req.Count)
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Error("generation failed",
		slog.String("error_type", string(classified.Kind)),
		slog.Int("original_status", classified.OriginalStatus),
		slog.String("original_message", redact.String(classified.OriginalMessage)),
		slog.Bool("retryable", classified.Retryable),
		slog.Int("requested_n", req.Count),
		slog.String("mode", string(req.Mode)))

	h.respondFailure(w, r, classified.HTTPStatus(), GenerateErrorResponse{
		Error:       classified.FullMessage(),
		ErrorType:   string(classified.Kind),
		Suggestions: classified.Suggestions,
		Retryable:   boolPtr(classified.Retryable),
	}, classified)
}

// respondRejected writes the minimal {images: [], error} envelope used for
// requests that never reached the provider.
func (h *GenerateHandler) respondRejected(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	h.respondFailure(w, r, status, GenerateErrorResponse{Error: message}, err)
}

func (h *GenerateHandler) respondFailure(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	body GenerateErrorResponse,
	err error,
) {
	body.Images = []string{}
	body.TraceID = shared.GetTraceID(r.Context())
	shared.LogErrorResponse(r, status, body.Error, err)
	shared.RespondWithJSON(w, r, status, body)
}

func boolPtr(v bool) *bool {
	return &v
}

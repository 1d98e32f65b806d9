package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phrazzld/vertex-studio/internal/api/middleware"
	"github.com/phrazzld/vertex-studio/internal/api/shared"
	"github.com/phrazzld/vertex-studio/internal/platform/filecache"
	"github.com/phrazzld/vertex-studio/internal/platform/logger"
)

// Gallery lists, deletes and summarizes cached images.
// *filecache.Store implements it.
type Gallery interface {
	List(ctx context.Context, page, limit int) (filecache.Page, error)
	Delete(ctx context.Context, filename string) error
	Stats(ctx context.Context) (filecache.Stats, error)
}

// GalleryHandler handles gallery HTTP requests.
type GalleryHandler struct {
	gallery Gallery
	logger  *slog.Logger
}

// NewGalleryHandler creates a new GalleryHandler.
func NewGalleryHandler(gallery Gallery, logger *slog.Logger) *GalleryHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for GalleryHandler")
	}

	return &GalleryHandler{
		gallery: gallery,
		logger:  logger.With(slog.String("component", "gallery_handler")),
	}
}

// List handles GET /api/gallery requests.
// Query parameters page and limit default to 1 and 12.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	page := shared.QueryInt(r, "page", filecache.DefaultPage)
	limit := shared.QueryInt(r, "limit", filecache.DefaultLimit)

	result, err := h.gallery.List(r.Context(), page, limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to load gallery", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// Delete handles DELETE /api/gallery/{filename} requests.
// The route must be protected by the admin auth middleware.
func (h *GalleryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	filename, err := getPathFilename(r, "filename")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if err := h.gallery.Delete(r.Context(), filename); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	tokenID := ""
	if claims, ok := middleware.GetAdminClaims(r); ok {
		tokenID = claims.ID
	}
	log.Info("image deleted",
		slog.String("filename", filename),
		slog.String("token_id", tokenID))

	w.WriteHeader(http.StatusNoContent)
}

// DebugCache handles GET /debug/cache requests with a summary of the cache
// directory. It is only routed in debug mode.
func (h *GalleryHandler) DebugCache(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gallery.Stats(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to inspect cache", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Health handles GET /health requests.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

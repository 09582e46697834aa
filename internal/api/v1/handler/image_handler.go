package handler

import (
	"net/http"
	"strings"

	"skechum/internal/api/v1/dto"
	"skechum/internal/middleware"
	"skechum/internal/presenter"
	"skechum/internal/service"

	"github.com/rs/zerolog"
)

// ImageHandler serves the gallery.
type ImageHandler struct {
	imageService service.ImageService
	logger       zerolog.Logger
}

func NewImageHandler(imageService service.ImageService, logger zerolog.Logger) *ImageHandler {
	return &ImageHandler{imageService: imageService, logger: logger}
}

// RegisterRoutes mounts image routes
func (h *ImageHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/images", authMw(http.HandlerFunc(h.listImages)))
	mux.Handle("/images/", authMw(http.HandlerFunc(h.handleImage)))
}

func (h *ImageHandler) listImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}
	limit, offset := pagination(r)
	images, total, err := h.imageService.List(r.Context(), middleware.UserIDFromContext(r.Context()), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ImageListResponseDTO{
		Images: presenter.Cards(images),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *ImageHandler) handleImage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/images/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	userID := middleware.UserIDFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		img, err := h.imageService.Get(r.Context(), userID, id)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, presenter.NewCard(img))
	case http.MethodDelete:
		if err := h.imageService.Delete(r.Context(), userID, id); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"skechum/internal/api/v1/dto"
	"skechum/internal/middleware"
	"skechum/internal/model"
	"skechum/internal/presenter"
	"skechum/internal/service"

	"github.com/rs/zerolog"
)

// Generator runs a composed generation request for a user.
type Generator interface {
	Generate(ctx context.Context, userID string, req model.GenerationRequest) (*service.GenerationResult, error)
}

// GenerationHandler serves POST /generate.
type GenerationHandler struct {
	composer  *service.Composer
	generator Generator
	logger    zerolog.Logger
}

func NewGenerationHandler(composer *service.Composer, generator Generator, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{composer: composer, generator: generator, logger: logger}
}

// RegisterRoutes mounts the generation route behind auth and the per-user rate limiter.
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux, authMw, rateMw func(http.Handler) http.Handler) {
	mux.Handle("/generate", authMw(rateMw(http.HandlerFunc(h.generate))))
}

func (h *GenerationHandler) generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "User ID not found in context")
		return
	}

	var req dto.GenerateRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}

	genReq, err := h.composer.Compose(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.generator.Generate(r.Context(), userID, genReq)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	card := presenter.NewCard(res.Image)
	card.Status = res.Status
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, card)
}

// fail writes the error with the failed presenter status so clients can render it.
func (h *GenerationHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("Generation failed")
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponseDTO{Error: code, Message: msg, Status: string(presenter.StatusFailed)})
}

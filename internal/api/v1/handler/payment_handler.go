package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"skechum/internal/api/v1/dto"
	"skechum/internal/middleware"
	"skechum/internal/model"
	"skechum/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Payments is the payment operations the handler needs.
type Payments interface {
	CreateCheckout(ctx context.Context, userID, pack string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	History(ctx context.Context, userID string, limit, offset int) ([]model.Payment, error)
	RefreshStatus(ctx context.Context, userID, id string) (*model.Payment, error)
}

type PaymentHandler struct {
	payments Payments
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewPaymentHandler(payments Payments, v *validator.Validate, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, validate: v, logger: logger}
}

// RegisterRoutes mounts payment routes. The webhook is authenticated by its signature.
func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/payments/checkout", authMw(http.HandlerFunc(h.createCheckout)))
	mux.Handle("/payments/history", authMw(http.HandlerFunc(h.history)))
	mux.Handle("/payments/", authMw(http.HandlerFunc(h.status)))
	mux.HandleFunc("/payments/webhook", h.webhook)
}

func (h *PaymentHandler) createCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}
	var req dto.CheckoutRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Validation failed: "+err.Error())
		return
	}
	url, err := h.payments.CreateCheckout(r.Context(), middleware.UserIDFromContext(r.Context()), req.Pack)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CheckoutResponseDTO{URL: url})
}

func (h *PaymentHandler) webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read payment webhook payload")
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read payload")
		return
	}
	if err := h.payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		if errors.Is(err, service.ErrInvalidWebhook) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *PaymentHandler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}
	limit, offset := pagination(r)
	payments, err := h.payments.History(r.Context(), middleware.UserIDFromContext(r.Context()), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp := make([]dto.PaymentResponseDTO, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentDTO(&payments[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// status serves GET /payments/{id}/status.
func (h *PaymentHandler) status(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/payments/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "status" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}
	p, err := h.payments.RefreshStatus(r.Context(), middleware.UserIDFromContext(r.Context()), parts[0])
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

func toPaymentDTO(p *model.Payment) dto.PaymentResponseDTO {
	return dto.PaymentResponseDTO{
		ID:                p.ID,
		ProviderPaymentID: p.ProviderPaymentID,
		AmountCents:       p.AmountCents,
		Currency:          p.Currency,
		Credits:           p.Credits,
		Status:            string(p.Status),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

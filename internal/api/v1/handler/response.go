package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"skechum/internal/api/v1/dto"
	"skechum/internal/service"

	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 64 << 10
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, dto.ErrorResponseDTO{Error: code, Message: msg})
}

// statusFor maps service errors onto HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, service.ErrProviderTimeout):
		return http.StatusGatewayTimeout, "provider_timeout"
	case errors.Is(err, service.ErrProviderFailed):
		return http.StatusBadGateway, "provider_error"
	case errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, service.ErrPromptTooLong),
		errors.Is(err, service.ErrInvalidStyle),
		errors.Is(err, service.ErrInvalidSize),
		errors.Is(err, service.ErrInvalidFormat),
		errors.Is(err, service.ErrInvalidIdempotencyKey),
		errors.Is(err, service.ErrInvalidCreditPack),
		errors.Is(err, service.ErrInvalidWebhook):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, service.ErrImageNotFound),
		errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError reports err to the client. Internal errors are logged and never echoed.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

// pagination reads limit and offset query parameters, ignoring malformed values.
func pagination(r *http.Request) (int, int) {
	limit := defaultPageSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, maxPageSize)
	}
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

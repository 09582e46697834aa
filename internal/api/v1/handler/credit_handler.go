package handler

import (
	"net/http"

	"skechum/internal/api/v1/dto"
	"skechum/internal/middleware"
	"skechum/internal/service"

	"github.com/rs/zerolog"
)

type CreditHandler struct {
	creditService service.CreditService
	logger        zerolog.Logger
}

func NewCreditHandler(creditService service.CreditService, logger zerolog.Logger) *CreditHandler {
	return &CreditHandler{creditService: creditService, logger: logger}
}

// RegisterRoutes mounts v1 credit routes
func (h *CreditHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/credits/balance", authMw(http.HandlerFunc(h.getBalance)))
	mux.Handle("/credits/logs", authMw(http.HandlerFunc(h.listLogs)))
}

func (h *CreditHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}
	balance, err := h.creditService.GetBalance(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponseDTO{Balance: balance})
}

func (h *CreditHandler) listLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
		return
	}
	limit, offset := pagination(r)
	entries, err := h.creditService.ListEntries(r.Context(), middleware.UserIDFromContext(r.Context()), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]dto.CreditLogResponseDTO, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.CreditLogResponseDTO{
			ID:        e.ID,
			Delta:     e.Delta,
			Reason:    e.Reason,
			Reference: e.Reference,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

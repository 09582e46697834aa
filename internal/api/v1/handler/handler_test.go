package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"skechum/internal/api/v1/dto"
	"skechum/internal/model"
	"skechum/internal/presenter"
	"skechum/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, mux http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

var asUser = map[string]string{"X-Test-User": testUser}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponseDTO {
	t.Helper()
	var body dto.ErrorResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func newGenerationMux(gen *fakeGenerator) *http.ServeMux {
	mux := http.NewServeMux()
	NewGenerationHandler(service.NewComposer(100), gen, zerolog.Nop()).RegisterRoutes(mux, testAuth, passThrough)
	return mux
}

func TestGenerateHandler(t *testing.T) {
	validBody := `{"prompt":"a fox","style":"anime","size":"square","format":"png"}`

	tests := []struct {
		name       string
		method     string
		body       string
		headers    map[string]string
		genErr     error
		replayed   bool
		wantStatus int
		wantCode   string
		wantCalls  int
	}{
		{name: "created", method: http.MethodPost, body: validBody, headers: asUser, wantStatus: http.StatusCreated, wantCalls: 1},
		{name: "replayed", method: http.MethodPost, body: validBody, headers: asUser, replayed: true, wantStatus: http.StatusOK, wantCalls: 1},
		{name: "no session", method: http.MethodPost, body: validBody, wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "wrong method", method: http.MethodGet, headers: asUser, wantStatus: http.StatusMethodNotAllowed, wantCode: "method_not_allowed"},
		{name: "bad json", method: http.MethodPost, body: `{`, headers: asUser, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "empty prompt", method: http.MethodPost, body: `{"prompt":"  ","style":"anime","size":"square"}`, headers: asUser, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "bad style", method: http.MethodPost, body: `{"prompt":"x","style":"cubism","size":"square"}`, headers: asUser, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "insufficient credits", method: http.MethodPost, body: validBody, headers: asUser, genErr: service.ErrInsufficientCredits, wantStatus: http.StatusPaymentRequired, wantCode: "insufficient_credits", wantCalls: 1},
		{name: "provider failed", method: http.MethodPost, body: validBody, headers: asUser, genErr: fmt.Errorf("%w: boom", service.ErrProviderFailed), wantStatus: http.StatusBadGateway, wantCode: "provider_error", wantCalls: 1},
		{name: "provider timeout", method: http.MethodPost, body: validBody, headers: asUser, genErr: fmt.Errorf("%w: slow", service.ErrProviderTimeout), wantStatus: http.StatusGatewayTimeout, wantCode: "provider_timeout", wantCalls: 1},
		{name: "internal", method: http.MethodPost, body: validBody, headers: asUser, genErr: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{res: completedResult(tt.replayed), err: tt.genErr}
			rec := doRequest(t, newGenerationMux(gen), tt.method, "/generate", tt.body, tt.headers)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalls, gen.calls)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantCode != "" {
				body := decodeError(t, rec)
				assert.Equal(t, tt.wantCode, body.Error)
				if tt.wantCode == "internal_error" {
					assert.Equal(t, "internal error", body.Message)
				}
				return
			}
			var card presenter.Card
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&card))
			assert.Equal(t, presenter.StatusCompleted, card.Status)
			assert.Equal(t, "https://cdn.test/a.png", card.URL)
			assert.Equal(t, model.FormatPNG, gen.last.Format)
		})
	}
}

func TestGenerateHandlerFailureCarriesFailedStatus(t *testing.T) {
	gen := &fakeGenerator{err: service.ErrInsufficientCredits}
	rec := doRequest(t, newGenerationMux(gen), http.MethodPost, "/generate", `{"prompt":"a","style":"anime","size":"square"}`, asUser)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, string(presenter.StatusFailed), decodeError(t, rec).Status)
}

func TestGenerateHandlerIdempotencyKeyHeader(t *testing.T) {
	gen := &fakeGenerator{res: completedResult(false)}
	headers := map[string]string{"X-Test-User": testUser, "Idempotency-Key": "abc-123"}
	rec := doRequest(t, newGenerationMux(gen), http.MethodPost, "/generate", `{"prompt":"a","style":"anime","size":"square"}`, headers)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "abc-123", gen.last.IdempotencyKey)
}

func TestCreditHandler(t *testing.T) {
	ref := "image:1"
	credits := &fakeCredits{
		balance: 7,
		entries: []model.CreditLogEntry{
			{ID: "e2", Delta: -1, Reason: model.CreditReasonGeneration, Reference: &ref, CreatedAt: fixedTime},
			{ID: "e1", Delta: 8, Reason: model.CreditReasonPurchase, CreatedAt: fixedTime.Add(-1)},
		},
	}
	mux := http.NewServeMux()
	NewCreditHandler(credits, zerolog.Nop()).RegisterRoutes(mux, testAuth)

	rec := doRequest(t, mux, http.MethodGet, "/credits/balance", "", asUser)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal dto.BalanceResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&bal))
	assert.Equal(t, 7, bal.Balance)

	rec = doRequest(t, mux, http.MethodGet, "/credits/logs?limit=500&offset=-3", "", asUser)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []dto.CreditLogResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&logs))
	require.Len(t, logs, 2)
	assert.Equal(t, "e2", logs[0].ID)
	assert.Equal(t, maxPageSize, credits.limit)
	assert.Equal(t, 0, credits.offset)

	rec = doRequest(t, mux, http.MethodGet, "/credits/logs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	credits.err = errors.New("db down")
	rec = doRequest(t, mux, http.MethodGet, "/credits/balance", "", asUser)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestImageHandler(t *testing.T) {
	img := completedResult(false).Image
	images := &fakeImages{images: map[string]*model.GeneratedImage{img.ID: img}}
	mux := http.NewServeMux()
	NewImageHandler(images, zerolog.Nop()).RegisterRoutes(mux, testAuth)

	rec := doRequest(t, mux, http.MethodGet, "/images", "", asUser)
	require.Equal(t, http.StatusOK, rec.Code)
	var list dto.ImageListResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, defaultPageSize, list.Limit)

	rec = doRequest(t, mux, http.MethodGet, "/images/"+img.ID, "", asUser)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/images/"+img.ID, "", map[string]string{"X-Test-User": "intruder"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, mux, http.MethodDelete, "/images/"+img.ID, "", asUser)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{img.ID}, images.deleted)

	rec = doRequest(t, mux, http.MethodDelete, "/images/"+img.ID, "", asUser)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, mux, http.MethodPut, "/images/"+img.ID, "", asUser)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func newPaymentMux(p *fakePayments) *http.ServeMux {
	mux := http.NewServeMux()
	NewPaymentHandler(p, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop()).RegisterRoutes(mux, testAuth)
	return mux
}

func TestPaymentCheckoutHandler(t *testing.T) {
	p := &fakePayments{}
	mux := newPaymentMux(p)

	rec := doRequest(t, mux, http.MethodPost, "/payments/checkout", `{"pack":"starter"}`, asUser)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.CheckoutResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "https://checkout.test/starter", resp.URL)

	rec = doRequest(t, mux, http.MethodPost, "/payments/checkout", `{}`, asUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p.checkoutErr = service.ErrInvalidCreditPack
	rec = doRequest(t, mux, http.MethodPost, "/payments/checkout", `{"pack":"mega"}`, asUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/payments/checkout", `{"pack":"starter"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentWebhookHandler(t *testing.T) {
	p := &fakePayments{}
	mux := newPaymentMux(p)

	rec := doRequest(t, mux, http.MethodPost, "/payments/webhook", `{"id":"evt_1"}`, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, http.StatusOK, rec.Code, "webhook needs no session")
	assert.Equal(t, `{"id":"evt_1"}`, string(p.payload))
	assert.Equal(t, "t=1,v1=abc", p.signature)

	p.webhookErr = fmt.Errorf("%w: bad signature", service.ErrInvalidWebhook)
	rec = doRequest(t, mux, http.MethodPost, "/payments/webhook", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p.webhookErr = errors.New("db down")
	rec = doRequest(t, mux, http.MethodPost, "/payments/webhook", `{}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "transient failures ask the provider to retry")
}

func TestPaymentHistoryAndStatusHandler(t *testing.T) {
	p := &fakePayments{payments: []model.Payment{
		{ID: "22222222-2222-2222-2222-222222222222", UserID: testUser, ProviderPaymentID: "cs_1", AmountCents: 500, Currency: "usd", Credits: 20, Status: model.PaymentSucceeded},
	}}
	mux := newPaymentMux(p)

	rec := doRequest(t, mux, http.MethodGet, "/payments/history", "", asUser)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []dto.PaymentResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "succeeded", history[0].Status)

	rec = doRequest(t, mux, http.MethodGet, "/payments/22222222-2222-2222-2222-222222222222/status", "", asUser)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", p.refreshed)

	rec = doRequest(t, mux, http.MethodGet, "/payments/unknown/status", "", asUser)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/payments/unknown", "", asUser)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserHandler(t *testing.T) {
	users := &fakeUsers{users: map[string]*model.User{}}
	mux := http.NewServeMux()
	NewUserHandler(users, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop()).RegisterRoutes(mux, testAuth)

	rec := doRequest(t, mux, http.MethodGet, "/users/me", "", asUser)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/users/me", `{"name":"Ada","email":"ada@example.com"}`, asUser)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created dto.UserResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, testUser, created.UserID)
	assert.Equal(t, 5, created.Balance)

	rec = doRequest(t, mux, http.MethodPost, "/users/me", `{"name":"Ada"}`, asUser)
	assert.Equal(t, http.StatusOK, rec.Code, "repeat signup is idempotent")

	rec = doRequest(t, mux, http.MethodPost, "/users/me", `{"email":"not-an-email"}`, asUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/users/me", "", asUser)
	require.Equal(t, http.StatusOK, rec.Code)
}

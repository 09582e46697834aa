package handler

import (
	"context"
	"net/http"
	"time"

	"skechum/internal/middleware"
	"skechum/internal/model"
	"skechum/internal/presenter"
	"skechum/internal/service"
)

const testUser = "user-1"

var fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testAuth stands in for the JWT middleware: X-Test-User becomes the authenticated user.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-Test-User")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization header missing")
			return
		}
		ctx := context.WithValue(r.Context(), middleware.UserContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func passThrough(next http.Handler) http.Handler { return next }

type fakeGenerator struct {
	res   *service.GenerationResult
	err   error
	calls int
	last  model.GenerationRequest
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, req model.GenerationRequest) (*service.GenerationResult, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func completedResult(replayed bool) *service.GenerationResult {
	ms := int64(1500)
	return &service.GenerationResult{
		Image: &model.GeneratedImage{
			ID:               "11111111-1111-1111-1111-111111111111",
			UserID:           testUser,
			URL:              "https://cdn.test/a.png",
			Prompt:           "a fox",
			Style:            model.StyleAnime,
			Size:             model.SizeSquare,
			Format:           model.FormatPNG,
			GenerationTimeMs: &ms,
			CreatedAt:        fixedTime,
		},
		Status:   presenter.StatusCompleted,
		Replayed: replayed,
	}
}

type fakeCredits struct {
	balance int
	entries []model.CreditLogEntry
	err     error
	limit   int
	offset  int
}

func (f *fakeCredits) GetBalance(_ context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, service.ErrUnauthorized
	}
	return f.balance, f.err
}

func (f *fakeCredits) ListEntries(_ context.Context, _ string, limit, offset int) ([]model.CreditLogEntry, error) {
	f.limit, f.offset = limit, offset
	return f.entries, f.err
}

func (f *fakeCredits) AppendEntry(_ context.Context, userID string, delta int, reason string, reference *string) (*model.CreditLogEntry, error) {
	return &model.CreditLogEntry{UserID: userID, Delta: delta, Reason: reason, Reference: reference}, nil
}

type fakeImages struct {
	images  map[string]*model.GeneratedImage
	deleted []string
}

func (f *fakeImages) List(_ context.Context, _ string, limit, offset int) ([]model.GeneratedImage, int, error) {
	var out []model.GeneratedImage
	for _, img := range f.images {
		out = append(out, *img)
	}
	return out, len(out), nil
}

func (f *fakeImages) Get(_ context.Context, userID, id string) (*model.GeneratedImage, error) {
	img, ok := f.images[id]
	if !ok || img.UserID != userID {
		return nil, service.ErrImageNotFound
	}
	return img, nil
}

func (f *fakeImages) Delete(ctx context.Context, userID, id string) error {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return err
	}
	delete(f.images, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePayments struct {
	webhookErr  error
	checkoutErr error
	payload     []byte
	signature   string
	payments    []model.Payment
	refreshed   string
}

func (f *fakePayments) CreateCheckout(_ context.Context, _ string, pack string) (string, error) {
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return "https://checkout.test/" + pack, nil
}

func (f *fakePayments) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payload, f.signature = payload, signature
	return f.webhookErr
}

func (f *fakePayments) History(_ context.Context, _ string, _, _ int) ([]model.Payment, error) {
	return f.payments, nil
}

func (f *fakePayments) RefreshStatus(_ context.Context, _ string, id string) (*model.Payment, error) {
	f.refreshed = id
	for i := range f.payments {
		if f.payments[i].ID == id {
			return &f.payments[i], nil
		}
	}
	return nil, service.ErrPaymentNotFound
}

type fakeUsers struct {
	users map[string]*model.User
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) (*model.User, bool, error) {
	if existing, ok := f.users[u.UserID]; ok {
		return existing, false, nil
	}
	u.CreatedAt = fixedTime
	f.users[u.UserID] = u
	return u, true, nil
}

func (f *fakeUsers) Get(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetWithBalance(ctx context.Context, id string) (*model.User, int, error) {
	u, err := f.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return u, 5, nil
}

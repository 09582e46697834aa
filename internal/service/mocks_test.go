package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"skechum/internal/model"
	"skechum/internal/provider"
	"skechum/internal/repository"

	"github.com/google/uuid"
)

// fakeLedger is an in-memory CreditRepository. Its mutex doubles as the per-user lock.
type fakeLedger struct {
	mu         sync.Mutex
	entries    []model.CreditLogEntry
	balanceErr error
	clock      time.Time
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (l *fakeLedger) balanceLocked(userID string) int {
	sum := 0
	for _, e := range l.entries {
		if e.UserID == userID {
			sum += e.Delta
		}
	}
	return sum
}

func (l *fakeLedger) appendLocked(userID string, delta int, reason string, reference *string) (*model.CreditLogEntry, error) {
	if reference != nil {
		for _, e := range l.entries {
			if e.UserID == userID && e.Reference != nil && *e.Reference == *reference {
				return nil, repository.ErrDuplicateEntry
			}
		}
	}
	l.clock = l.clock.Add(time.Second)
	e := model.CreditLogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		Reference: reference,
		CreatedAt: l.clock,
	}
	l.entries = append(l.entries, e)
	return &e, nil
}

func (l *fakeLedger) GetBalance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balanceErr != nil {
		return 0, l.balanceErr
	}
	return l.balanceLocked(userID), nil
}

func (l *fakeLedger) AppendEntry(_ context.Context, userID string, delta int, reason string, reference *string) (*model.CreditLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(userID, delta, reason, reference)
}

func (l *fakeLedger) ListEntries(_ context.Context, userID string, limit, offset int) ([]model.CreditLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.CreditLogEntry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// fakeGallery implements ImageRepository and GenerationRepository on top of a fakeLedger.
type fakeGallery struct {
	ledger    *fakeLedger
	images    []model.GeneratedImage
	commitErr error
}

func newFakeGallery(ledger *fakeLedger) *fakeGallery {
	return &fakeGallery{ledger: ledger}
}

func (g *fakeGallery) Commit(_ context.Context, img *model.GeneratedImage, cost int) (*model.GeneratedImage, error) {
	g.ledger.mu.Lock()
	defer g.ledger.mu.Unlock()
	if g.commitErr != nil {
		return nil, g.commitErr
	}
	if img.IdempotencyKey != nil {
		for i := range g.images {
			existing := g.images[i]
			if existing.UserID == img.UserID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *img.IdempotencyKey {
				return &existing, repository.ErrDuplicateIdempotencyKey
			}
		}
	}
	if g.ledger.balanceLocked(img.UserID) < cost {
		return nil, repository.ErrInsufficientBalance
	}
	stored := *img
	stored.CreatedAt = g.ledger.clock.Add(time.Millisecond)
	g.images = append(g.images, stored)
	if cost > 0 {
		ref := "image:" + img.ID
		if _, err := g.ledger.appendLocked(img.UserID, -cost, model.CreditReasonGeneration, &ref); err != nil {
			return nil, err
		}
	}
	return &stored, nil
}

func (g *fakeGallery) find(userID string, match func(model.GeneratedImage) bool) (*model.GeneratedImage, error) {
	g.ledger.mu.Lock()
	defer g.ledger.mu.Unlock()
	for i := range g.images {
		if g.images[i].UserID == userID && match(g.images[i]) {
			img := g.images[i]
			return &img, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (g *fakeGallery) GetByID(_ context.Context, userID, id string) (*model.GeneratedImage, error) {
	return g.find(userID, func(img model.GeneratedImage) bool { return img.ID == id })
}

func (g *fakeGallery) GetByIdempotencyKey(_ context.Context, userID, key string) (*model.GeneratedImage, error) {
	return g.find(userID, func(img model.GeneratedImage) bool {
		return img.IdempotencyKey != nil && *img.IdempotencyKey == key
	})
}

func (g *fakeGallery) ListByUser(_ context.Context, userID string, limit, offset int) ([]model.GeneratedImage, error) {
	g.ledger.mu.Lock()
	defer g.ledger.mu.Unlock()
	var out []model.GeneratedImage
	for i := len(g.images) - 1; i >= 0; i-- {
		if g.images[i].UserID == userID {
			out = append(out, g.images[i])
		}
	}
	return page(out, limit, offset), nil
}

func (g *fakeGallery) CountByUser(_ context.Context, userID string) (int, error) {
	g.ledger.mu.Lock()
	defer g.ledger.mu.Unlock()
	n := 0
	for _, img := range g.images {
		if img.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (g *fakeGallery) Delete(_ context.Context, userID, id string) error {
	g.ledger.mu.Lock()
	defer g.ledger.mu.Unlock()
	for i := range g.images {
		if g.images[i].UserID == userID && g.images[i].ID == id {
			g.images = append(g.images[:i], g.images[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (g *fakeGallery) count() int {
	g.ledger.mu.Lock()
	defer g.ledger.mu.Unlock()
	return len(g.images)
}

// fakeGenerator returns a fixed output or error and counts calls.
type fakeGenerator struct {
	out   *provider.Output
	err   error
	calls atomic.Int32
}

func (f *fakeGenerator) Generate(_ context.Context, _ model.GenerationRequest) (*provider.Output, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := *f.out
	return &out, nil
}

// fakeStore records uploaded and deleted object keys.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakePublisher captures published payloads.
type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.payloads = append(p.payloads, payload)
	return "id", nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

// fakeUsers is an in-memory UserRepository that grants signup credits into a fakeLedger.
type fakeUsers struct {
	ledger *fakeLedger
	users  map[string]*model.User
}

func newFakeUsers(ledger *fakeLedger) *fakeUsers {
	return &fakeUsers{ledger: ledger, users: map[string]*model.User{}}
}

func (f *fakeUsers) CreateUser(_ context.Context, u *model.User, signupCredits int) (bool, error) {
	if existing, ok := f.users[u.UserID]; ok {
		*u = *existing
		return false, nil
	}
	stored := *u
	f.users[u.UserID] = &stored
	if signupCredits > 0 {
		ref := repository.SignupReference
		if _, err := f.ledger.AppendEntry(context.Background(), u.UserID, signupCredits, model.CreditReasonSignupBonus, &ref); err != nil && !errors.Is(err, repository.ErrDuplicateEntry) {
			return false, err
		}
	}
	return true, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (f *fakeUsers) UpdateStripeCustomerID(_ context.Context, userID, customerID string) error {
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.StripeCustomerID = &customerID
	return nil
}

// fakePayments mirrors the transactional payment repository against a fakeLedger.
type fakePayments struct {
	ledger   *fakeLedger
	payments []*model.Payment
}

func newFakePayments(ledger *fakeLedger) *fakePayments {
	return &fakePayments{ledger: ledger}
}

func (f *fakePayments) byProvider(id string) *model.Payment {
	for _, p := range f.payments {
		if p.ProviderPaymentID == id {
			return p
		}
	}
	return nil
}

func (f *fakePayments) Record(_ context.Context, p *model.Payment) error {
	if f.byProvider(p.ProviderPaymentID) != nil {
		return nil
	}
	stored := *p
	stored.ID = uuid.NewString()
	stored.Status = model.PaymentPending
	stored.CreatedAt = time.Now().Add(-time.Hour)
	stored.UpdatedAt = stored.CreatedAt
	f.payments = append(f.payments, &stored)
	return nil
}

func (f *fakePayments) ApplyStatus(ctx context.Context, p *model.Payment) (*model.Payment, bool, error) {
	_ = f.Record(ctx, p)
	stored := f.byProvider(p.ProviderPaymentID)
	if stored.Status == model.PaymentSucceeded || p.Status == stored.Status || p.Status == model.PaymentPending {
		out := *stored
		return &out, false, nil
	}
	stored.Status = p.Status
	stored.UpdatedAt = time.Now()
	credited := false
	if p.Status == model.PaymentSucceeded {
		ref := repository.PaymentReference(stored.ProviderPaymentID)
		_, err := f.ledger.AppendEntry(ctx, stored.UserID, stored.Credits, model.CreditReasonPurchase, &ref)
		credited = err == nil
	}
	out := *stored
	return &out, credited, nil
}

func (f *fakePayments) GetByID(_ context.Context, userID, id string) (*model.Payment, error) {
	for _, p := range f.payments {
		if p.ID == id && p.UserID == userID {
			out := *p
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakePayments) ListByUser(_ context.Context, userID string, limit, offset int) ([]model.Payment, error) {
	var out []model.Payment
	for i := len(f.payments) - 1; i >= 0; i-- {
		if f.payments[i].UserID == userID {
			out = append(out, *f.payments[i])
		}
	}
	return page(out, limit, offset), nil
}

func (f *fakePayments) ListPending(_ context.Context, olderThan time.Time, limit int) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range f.payments {
		if p.Status == model.PaymentPending && p.UpdatedAt.Before(olderThan) {
			out = append(out, *p)
		}
	}
	return page(out, limit, 0), nil
}

// fakeGateway is a scripted PaymentGateway.
type fakeGateway struct {
	sessions      map[string]*CheckoutSession
	event         *WebhookEvent
	parseErr      error
	customersMade int
	lastCheckout  CheckoutParams
	nextSessionID int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*CheckoutSession{}}
}

func (g *fakeGateway) CreateCustomer(_ context.Context, user *model.User) (string, error) {
	g.customersMade++
	return "cus_" + user.UserID, nil
}

func (g *fakeGateway) CreateCheckout(_ context.Context, p CheckoutParams) (*CheckoutSession, error) {
	g.nextSessionID++
	g.lastCheckout = p
	sess := &CheckoutSession{
		ID:          fmt.Sprintf("cs_test_%d", g.nextSessionID),
		URL:         "https://checkout.test/session",
		Status:      model.PaymentPending,
		AmountCents: 500,
		Currency:    "usd",
		Metadata:    map[string]string{"user_id": p.UserID, "credits": "20"},
	}
	g.sessions[sess.ID] = sess
	return sess, nil
}

func (g *fakeGateway) GetCheckout(_ context.Context, id string) (*CheckoutSession, error) {
	sess, ok := g.sessions[id]
	if !ok {
		return nil, errors.New("no such session")
	}
	out := *sess
	return &out, nil
}

func (g *fakeGateway) ParseWebhook(_ []byte, _ string) (*WebhookEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return g.event, nil
}

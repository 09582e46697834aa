package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"skechum/internal/metrics"
	"skechum/internal/model"
	"skechum/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CreditPack is a purchasable bundle of credits.
type CreditPack struct {
	Name    string
	PriceID string
	Credits int
}

// PaymentService sells credit packs and turns confirmed payments into ledger credits.
type PaymentService struct {
	gateway   PaymentGateway
	payments  repository.PaymentRepository
	users     repository.UserRepository
	packs     map[string]CreditPack
	returnURL string
	logger    zerolog.Logger
	now       func() time.Time
}

// BuildCreditPacks joins pack price ids with their credit amounts; packs missing either are skipped.
func BuildCreditPacks(priceIDs map[string]string, credits map[string]int) map[string]CreditPack {
	packs := make(map[string]CreditPack, len(priceIDs))
	for name, priceID := range priceIDs {
		n, ok := credits[name]
		if !ok || n <= 0 || priceID == "" {
			continue
		}
		packs[name] = CreditPack{Name: name, PriceID: priceID, Credits: n}
	}
	return packs
}

func NewPaymentService(gateway PaymentGateway, payments repository.PaymentRepository, users repository.UserRepository, packs map[string]CreditPack, returnURL string, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		gateway:   gateway,
		payments:  payments,
		users:     users,
		packs:     packs,
		returnURL: returnURL,
		logger:    logger.With().Str("service", "PaymentService").Logger(),
		now:       time.Now,
	}
}

// CreateCheckout starts a hosted checkout for pack and records the pending payment.
func (s *PaymentService) CreateCheckout(ctx context.Context, userID, pack string) (string, error) {
	if userID == "" {
		return "", ErrUnauthorized
	}
	p, ok := s.packs[pack]
	if !ok {
		return "", ErrInvalidCreditPack
	}

	customerID, err := s.customerFor(ctx, userID)
	if err != nil {
		return "", err
	}

	sess, err := s.gateway.CreateCheckout(ctx, CheckoutParams{
		UserID:     userID,
		CustomerID: customerID,
		PriceID:    p.PriceID,
		Pack:       p.Name,
		Credits:    p.Credits,
		ReturnURL:  s.returnURL,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("pack", pack).Msg("Failed to create checkout session")
		return "", err
	}

	payment := &model.Payment{
		UserID:            userID,
		ProviderPaymentID: sess.ID,
		AmountCents:       sess.AmountCents,
		Currency:          currencyOrDefault(sess.Currency),
		Credits:           p.Credits,
		Status:            model.PaymentPending,
	}
	if err := s.payments.Record(ctx, payment); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("session_id", sess.ID).Msg("Failed to record pending payment")
		return "", err
	}
	return sess.URL, nil
}

// customerFor returns the user's payment customer id, creating one on first purchase.
// Users without a profile check out as guests.
func (s *PaymentService) customerFor(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn().Str("user_id", userID).Msg("No profile for checkout; continuing without customer")
			return "", nil
		}
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	customerID, err := s.gateway.CreateCustomer(ctx, user)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create payment customer")
		return "", err
	}
	if err := s.users.UpdateStripeCustomerID(ctx, userID, customerID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to store payment customer id")
		return "", fmt.Errorf("store customer id: %w", err)
	}
	return customerID, nil
}

// HandleWebhook verifies and applies a payment notification. Redelivered events are harmless.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for payment webhook")
		return err
	}
	s.logger.Info().Str("event_type", event.Type).Msg("Payment webhook received")

	switch event.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded, EventCheckoutAsyncFailed, EventCheckoutExpired:
	default:
		s.logger.Debug().Str("event_type", event.Type).Msg("Ignoring payment webhook event")
		return nil
	}
	if event.Session == nil {
		return fmt.Errorf("%w: missing checkout session", ErrInvalidWebhook)
	}

	payment, err := paymentFromSession(event.Session)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", event.Session.ID).Msg("Unusable checkout session in webhook")
		return err
	}
	_, err = s.apply(ctx, payment)
	return err
}

// RefreshStatus re-reads a payment from the provider and applies any change.
func (s *PaymentService) RefreshStatus(ctx context.Context, userID, id string) (*model.Payment, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPaymentNotFound
	}
	stored, err := s.payments.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if stored.Status == model.PaymentSucceeded {
		return stored, nil
	}
	return s.refresh(ctx, stored)
}

func (s *PaymentService) refresh(ctx context.Context, stored *model.Payment) (*model.Payment, error) {
	sess, err := s.gateway.GetCheckout(ctx, stored.ProviderPaymentID)
	if err != nil {
		return nil, err
	}
	update := *stored
	update.Status = sess.Status
	if sess.AmountCents > 0 {
		update.AmountCents = sess.AmountCents
	}
	return s.apply(ctx, &update)
}

func (s *PaymentService) apply(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	stored, credited, err := s.payments.ApplyStatus(ctx, p)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", p.UserID).Str("provider_payment_id", p.ProviderPaymentID).Msg("Failed to apply payment status")
		return nil, err
	}
	if credited {
		metrics.RecordCredits(stored.Credits)
		s.logger.Info().Str("user_id", stored.UserID).Int("credits", stored.Credits).Str("provider_payment_id", stored.ProviderPaymentID).Msg("Credits granted for payment")
	}
	return stored, nil
}

// History lists the user's payments newest-first.
func (s *PaymentService) History(ctx context.Context, userID string, limit, offset int) ([]model.Payment, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	return s.payments.ListByUser(ctx, userID, limit, offset)
}

// Reconcile refreshes pending payments untouched for at least minAge. It returns how many
// changed status. Failures on individual payments are logged and skipped.
func (s *PaymentService) Reconcile(ctx context.Context, minAge time.Duration, batch int) (int, error) {
	pending, err := s.payments.ListPending(ctx, s.now().Add(-minAge), batch)
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}
	changed := 0
	for i := range pending {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		p := &pending[i]
		updated, err := s.refresh(ctx, p)
		if err != nil {
			s.logger.Warn().Err(err).Str("payment_id", p.ID).Msg("Failed to reconcile payment")
			continue
		}
		if updated.Status != p.Status {
			changed++
		}
	}
	s.logger.Info().Int("pending", len(pending)).Int("changed", changed).Msg("Payment reconciliation finished")
	return changed, nil
}

func paymentFromSession(sess *CheckoutSession) (*model.Payment, error) {
	userID := sess.Metadata["user_id"]
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user_id in metadata", ErrInvalidWebhook)
	}
	credits, err := strconv.Atoi(sess.Metadata["credits"])
	if err != nil || credits <= 0 {
		return nil, fmt.Errorf("%w: invalid credits in metadata", ErrInvalidWebhook)
	}
	return &model.Payment{
		UserID:            userID,
		ProviderPaymentID: sess.ID,
		AmountCents:       sess.AmountCents,
		Currency:          currencyOrDefault(sess.Currency),
		Credits:           credits,
		Status:            sess.Status,
	}, nil
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "usd"
	}
	return c
}

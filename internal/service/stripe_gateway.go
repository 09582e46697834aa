package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"skechum/internal/model"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"
)

// CheckoutSession is the provider-neutral view of a hosted checkout.
type CheckoutSession struct {
	ID          string
	URL         string
	Status      model.PaymentStatus
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// CheckoutParams describes a one-off credit pack purchase.
type CheckoutParams struct {
	UserID     string
	CustomerID string
	PriceID    string
	Pack       string
	Credits    int
	ReturnURL  string
}

// WebhookEvent is a verified payment provider notification.
type WebhookEvent struct {
	Type    string
	Session *CheckoutSession
}

// PaymentGateway is the payment provider boundary.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, user *model.User) (string, error)
	CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	GetCheckout(ctx context.Context, id string) (*CheckoutSession, error)
	// ParseWebhook verifies the signature. Session is nil for non checkout events.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// Checkout event types handled by the payment service.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired        = "checkout.session.expired"
	checkoutEventPrefix         = "checkout.session."
)

type stripeGateway struct {
	webhookSecret string
}

// NewStripeGateway sets the Stripe API key and returns a gateway backed by Stripe Checkout.
func NewStripeGateway(secretKey, webhookSecret string) PaymentGateway {
	stripe.Key = secretKey
	return &stripeGateway{webhookSecret: webhookSecret}
}

func (g *stripeGateway) CreateCustomer(ctx context.Context, user *model.User) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.Name),
		Metadata: map[string]string{"user_id": user.UserID},
	}
	params.Context = ctx
	cust, err := customerpkg.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

func (g *stripeGateway) CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	metadata := map[string]string{
		"user_id": p.UserID,
		"pack":    p.Pack,
		"credits": fmt.Sprint(p.Credits),
	}
	params := &stripe.CheckoutSessionParams{
		ClientReferenceID: stripe.String(p.UserID),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)}},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.ReturnURL + "?status=success"),
		CancelURL:         stripe.String(p.ReturnURL + "?status=cancel"),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	params.Context = ctx
	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return fromStripeSession(sess, ""), nil
}

func (g *stripeGateway) GetCheckout(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := checkoutsession.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("fetch checkout session %s: %w", id, err)
	}
	return fromStripeSession(sess, ""), nil
}

func (g *stripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	out := &WebhookEvent{Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, checkoutEventPrefix) {
		return out, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: invalid checkout.session data: %v", ErrInvalidWebhook, err)
	}
	out.Session = fromStripeSession(&cs, out.Type)
	return out, nil
}

// fromStripeSession maps a checkout session onto a payment status. eventType, when set,
// overrides what the session fields alone would say.
func fromStripeSession(cs *stripe.CheckoutSession, eventType string) *CheckoutSession {
	status := model.PaymentPending
	switch {
	case eventType == EventCheckoutAsyncFailed || cs.Status == stripe.CheckoutSessionStatusExpired:
		status = model.PaymentFailed
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		status = model.PaymentSucceeded
	}
	return &CheckoutSession{
		ID:          cs.ID,
		URL:         cs.URL,
		Status:      status,
		AmountCents: cs.AmountTotal,
		Currency:    string(cs.Currency),
		Metadata:    cs.Metadata,
	}
}

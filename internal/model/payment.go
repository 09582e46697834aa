package model

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

// Payment is a credit purchase recorded from the payment provider.
type Payment struct {
	ID                string        `db:"id" json:"id"`
	UserID            string        `db:"user_id" json:"user_id"`
	ProviderPaymentID string        `db:"provider_payment_id" json:"provider_payment_id"`
	AmountCents       int64         `db:"amount_cents" json:"amount_cents"`
	Currency          string        `db:"currency" json:"currency"`
	Credits           int           `db:"credits" json:"credits"`
	Status            PaymentStatus `db:"status" json:"status"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

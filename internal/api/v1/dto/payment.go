package dto

import "time"

// CheckoutRequestDTO selects a credit pack to purchase
type CheckoutRequestDTO struct {
	Pack string `json:"pack" validate:"required"`
}

// CheckoutResponseDTO carries the hosted checkout page URL
type CheckoutResponseDTO struct {
	URL string `json:"url"`
}

// PaymentResponseDTO is returned by the payment history and status endpoints
type PaymentResponseDTO struct {
	ID                string    `json:"id"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	Credits           int       `json:"credits"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

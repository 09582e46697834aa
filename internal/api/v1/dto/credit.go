package dto

import "time"

// BalanceResponseDTO is returned by GET /credits/balance
type BalanceResponseDTO struct {
	Balance int `json:"balance"`
}

// CreditLogResponseDTO is one ledger entry
type CreditLogResponseDTO struct {
	ID        string    `json:"id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	Reference *string   `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

package model

import "time"

// Ledger entry reasons.
const (
	CreditReasonGeneration  = "generation"
	CreditReasonPurchase    = "purchase"
	CreditReasonSignupBonus = "signup_bonus"
	CreditReasonAdjustment  = "adjustment"
)

// CreditLogEntry is an immutable signed credit adjustment.
type CreditLogEntry struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Delta     int       `db:"delta" json:"delta"`
	Reason    string    `db:"reason" json:"reason"`
	Reference *string   `db:"reference" json:"reference,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Withdrawal statuses.
const (
	WithdrawalPending = "pending"
)

// PaymentMethod is the payout destination a user submits with a withdrawal.
type PaymentMethod struct {
	Type        string  `json:"type"                   validate:"oneof=card bank"`
	Last4       string  `json:"last4"                  validate:"len=4"`
	ExpiryMonth *int    `json:"expiry_month,omitempty" validate:"omitnil,min=1,max=12"`
	ExpiryYear  *int    `json:"expiry_year,omitempty"  validate:"omitnil,min=2024"`
	BankName    *string `json:"bank_name,omitempty"`
}

// Label is the string stored on the withdrawal row, e.g. "card ending 4242".
func (p PaymentMethod) Label() string {
	if p.Type == "bank" && p.BankName != nil && *p.BankName != "" {
		return fmt.Sprintf("bank %s ending %s", *p.BankName, p.Last4)
	}
	return fmt.Sprintf("%s ending %s", p.Type, p.Last4)
}

// UserPoints is a row of user_points.
type UserPoints struct {
	UserID           string    `json:"user_id,omitempty"`
	Points           int64     `json:"points"`
	LastPointsUpdate time.Time `json:"last_points_update"`
}

// WithdrawalRequest is a row of withdrawal_requests.
type WithdrawalRequest struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// WithdrawalInput is the JSON body for POST /api/withdrawals.
type WithdrawalInput struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

// InviteLink is a row of invite_links, optionally with the profiles that
// signed up through it.
type InviteLink struct {
	ID        string    `json:"id"`
	CreatorID string    `json:"creator_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Invitees  []Invitee `json:"invitees,omitempty"`
}

// Invitee is the slice of a profile embedded under an invite link.
type Invitee struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Details is an open-ended key/value payload attached to audit and
// analytics records.
type Details map[string]any

// EventInput is the JSON body for POST /api/events.
type EventInput struct {
	EventType string  `json:"event_type"`
	EventData Details `json:"event_data"`
}

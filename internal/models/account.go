package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles. The credit policy table in internal/credits keys off these.
const (
	RoleRequester = "requester"
	RoleProvider  = "provider"
)

type Account struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"display_name"`
	Role              string    `json:"role"`
	PasswordHash      string    `json:"-"`
	ReferralCode      string    `json:"referral_code"`
	PayoutDestination *string   `json:"payout_destination,omitempty"`
	CompletedOrders   int       `json:"completed_orders"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

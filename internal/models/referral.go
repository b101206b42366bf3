package models

import (
	"time"

	"github.com/google/uuid"
)

// Referral record statuses.
const (
	ReferralStatusPending   = "pending"
	ReferralStatusCompleted = "completed"
)

// ReferralRecord tracks one introduction between two users. A user can be
// referred at most once. The two reward flags are write-once and independent:
// each side's bonus is issued exactly once no matter how many qualifying
// actions arrive.
type ReferralRecord struct {
	ID               uuid.UUID  `json:"id"`
	ReferrerID       uuid.UUID  `json:"referrer_id"`
	ReferredID       uuid.UUID  `json:"referred_id"`
	Status           string     `json:"status"`
	ReferredRewarded bool       `json:"referred_rewarded"`
	ReferrerRewarded bool       `json:"referrer_rewarded"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

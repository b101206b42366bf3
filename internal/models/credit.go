package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry actions. Entries are append-only; the sum of all deltas for an
// account must always equal its current balance.
const (
	CreditActionPurchase      = "purchase"
	CreditActionConsume       = "consume"
	CreditActionReferralBonus = "referral_bonus"
	CreditActionAdminAdjust   = "admin_adjust"
)

// CreditAccount is the per-(owner, role) credit balance. Created lazily on
// first access and mutated only by the credits service. FreeCreditUsed and
// UnlimitedUntil never revert once set (an unlimited pass ends by expiry).
type CreditAccount struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Role           string     `json:"role"`
	Balance        int        `json:"balance"`
	FreeCreditUsed bool       `json:"free_credit_used"`
	UnlimitedUntil *time.Time `json:"unlimited_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UnlimitedActive reports whether the account holds an unexpired unlimited pass.
func (a *CreditAccount) UnlimitedActive(now time.Time) bool {
	return a.UnlimitedUntil != nil && a.UnlimitedUntil.After(now)
}

type LedgerEntry struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	Action       string    `json:"action"`
	Delta        int       `json:"delta"`
	BalanceAfter int       `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreditPackage is a catalog row. Either CreditAmount > 0 (a pack of credits)
// or UnlimitedValidityDays > 0 (a time-boxed unlimited pass), never both.
// Read-only to the core; admin tooling maintains the catalog.
type CreditPackage struct {
	ID                    uuid.UUID `json:"id"`
	Role                  string    `json:"role"`
	Name                  string    `json:"name"`
	PriceCents            int64     `json:"price_cents"`
	CreditAmount          int       `json:"credit_amount"`
	UnlimitedValidityDays int       `json:"unlimited_validity_days"`
	Active                bool      `json:"active"`
}

// Unlimited reports whether the package grants a time-boxed unlimited pass.
func (p *CreditPackage) Unlimited() bool { return p.UnlimitedValidityDays > 0 }

// Credit purchase statuses. A purchase row is keyed by the processor checkout
// session so duplicate confirmations grant the package exactly once.
const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
)

type CreditPurchase struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Role       string    `json:"role"`
	PackageID  uuid.UUID `json:"package_id"`
	PriceCents int64     `json:"price_cents"`
	SessionRef string    `json:"session_ref"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

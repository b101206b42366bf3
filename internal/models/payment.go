package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow payment statuses. Transitions are monotone:
// pending -> authorized -> captured -> {released | refunded};
// pending|authorized -> failed on processor error.
// failed and released are terminal; refunded is reachable only from captured.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusReleased   = "released"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusFailed     = "failed"
)

// EscrowPayment holds the requester's charge for an accepted offer until the
// task completes. All amounts are integer cents. The platform commission is
// deducted from the provider's payout, never added to the requester's charge,
// so TotalAmountCents == BaseAmountCents + ProcessorFeeCents.
type EscrowPayment struct {
	ID                      uuid.UUID `json:"id"`
	TaskID                  uuid.UUID `json:"task_id"`
	OfferID                 uuid.UUID `json:"offer_id"`
	RequesterID             uuid.UUID `json:"requester_id"`
	ProviderID              uuid.UUID `json:"provider_id"`
	BaseAmountCents         int64     `json:"base_amount_cents"`
	ProcessorFeeCents       int64     `json:"processor_fee_cents"`
	PlatformCommissionCents int64     `json:"platform_commission_cents"`
	TotalAmountCents        int64     `json:"total_amount_cents"`
	RefundedCents           int64     `json:"refunded_cents"`
	Status                  string    `json:"status"`
	ExternalReference       string    `json:"external_reference,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Payout transfer statuses.
const (
	PayoutStatusPaid = "paid"
)

// PayoutTransfer records the provider's share of a released escrow payment.
// Created only on successful release.
type PayoutTransfer struct {
	ID                 uuid.UUID `json:"id"`
	EscrowPaymentID    uuid.UUID `json:"escrow_payment_id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	AmountCents        int64     `json:"amount_cents"`
	Status             string    `json:"status"`
	ExternalTransferID string    `json:"external_transfer_id"`
	CreatedAt          time.Time `json:"created_at"`
}

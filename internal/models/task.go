package models

import (
	"time"

	"github.com/google/uuid"
)

// Task and offer statuses for the thin task/offer workflow that drives the
// monetization core. Matching, geolocation and richer task metadata live in
// other services.
const (
	TaskStatusOpen      = "open"
	TaskStatusBooked    = "booked"
	TaskStatusPaid      = "paid"
	TaskStatusCompleted = "completed"
	TaskStatusCancelled = "cancelled"

	OfferStatusSubmitted = "submitted"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
)

type Task struct {
	ID              uuid.UUID  `json:"id"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	InsuranceCents  int64      `json:"insurance_cents"`
	AcceptedOfferID *uuid.UUID `json:"accepted_offer_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Offer struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	PriceCents int64     `json:"price_cents"`
	Message    string    `json:"message,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

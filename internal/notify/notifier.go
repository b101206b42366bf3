package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Event kinds delivered to the notification dispatcher.
const (
	EventCreditsPurchased = "credits_purchased"
	EventReferralBonus    = "referral_bonus"
	EventPaymentCaptured  = "payment_captured"
	EventPaymentReleased  = "payment_released"
)

type Event struct {
	Kind        string    `json:"kind"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Role        string    `json:"role,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Credits     int       `json:"credits,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Notifier hands events to the external notification dispatcher. Delivery is
// fire-and-forget: implementations log failures and never return them, so a
// broken dispatcher cannot unwind a ledger transaction.
type Notifier interface {
	// Emit enqueues an event outside any transaction.
	Emit(ctx context.Context, ev Event)
	// EmitTx enqueues an event within the caller's transaction so the event
	// is dropped together with a rolled-back mutation.
	EmitTx(ctx context.Context, tx pgx.Tx, ev Event)
}

// RiverNotifier enqueues dispatch jobs on the River queue.
type RiverNotifier struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

func NewRiverNotifier(client *river.Client[pgx.Tx], log *slog.Logger) *RiverNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &RiverNotifier{client: client, log: log}
}

var _ Notifier = (*RiverNotifier)(nil)

func (n *RiverNotifier) Emit(ctx context.Context, ev Event) {
	if _, err := n.client.Insert(ctx, DispatchJobArgs{Event: ev}, nil); err != nil {
		n.log.Error("enqueue notification", "kind", ev.Kind, "error", err)
	}
}

func (n *RiverNotifier) EmitTx(ctx context.Context, tx pgx.Tx, ev Event) {
	if _, err := n.client.InsertTx(ctx, tx, DispatchJobArgs{Event: ev}, nil); err != nil {
		n.log.Error("enqueue notification", "kind", ev.Kind, "error", err)
	}
}

// NopNotifier discards all events. Used when no dispatcher URL is configured.
type NopNotifier struct{}

func (NopNotifier) Emit(context.Context, Event) {}
func (NopNotifier) EmitTx(context.Context, pgx.Tx, Event) {}

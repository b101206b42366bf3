package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Directory is the read-mostly view of the profile store the monetization
// core needs. The completed-order counter is monotonically increasing and is
// incremented exactly once per completed order, inside the payout release
// transaction (IncrementCompletedOrdersTx) so the commission tier read at
// release time can never race the increment.
type Directory interface {
	// RoleOf returns the account's own role (requester or provider).
	RoleOf(ctx context.Context, userID uuid.UUID) (string, error)
	// PayoutDestination returns the provider's payout destination, or ""
	// when none is configured.
	PayoutDestination(ctx context.Context, providerID uuid.UUID) (string, error)
	// CompletedOrders returns the provider's lifetime completed-order count.
	CompletedOrders(ctx context.Context, providerID uuid.UUID) (int, error)
	// IncrementCompletedOrdersTx bumps the counter within the caller's
	// transaction.
	IncrementCompletedOrdersTx(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) error
}

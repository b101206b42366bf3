package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Directory = (*Repository)(nil)

func (r *Repository) RoleOf(ctx context.Context, userID uuid.UUID) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM accounts WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		return "", err
	}
	return role, nil
}

func (r *Repository) PayoutDestination(ctx context.Context, providerID uuid.UUID) (string, error) {
	var dest *string
	err := r.pool.QueryRow(ctx, `
		SELECT payout_destination FROM accounts WHERE id = $1
	`, providerID).Scan(&dest)
	if err != nil {
		return "", err
	}
	if dest == nil {
		return "", nil
	}
	return *dest, nil
}

func (r *Repository) CompletedOrders(ctx context.Context, providerID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT completed_orders FROM accounts WHERE id = $1
	`, providerID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository) IncrementCompletedOrdersTx(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts SET completed_orders = completed_orders + 1, updated_at = now()
		WHERE id = $1
	`, providerID)
	return err
}

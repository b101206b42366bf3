package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localhive/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, email, display_name, role, password_hash, referral_code, payout_destination, completed_orders, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Role, &a.PasswordHash, &a.ReferralCode,
		&a.PayoutDestination, &a.CompletedOrders, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account and returns it.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, role, referralCode string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, display_name, role, referral_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+accountColumns+`
	`, uuid.New(), email, passwordHash, displayName, role, referralCode))
}

// GetByEmail returns the account for login, or nil when the email is unknown.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = $1
	`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id))
}

// GetByReferralCode resolves an invite code to its owner, or nil when the
// code is unknown.
func (r *Repository) GetByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1
	`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// SetPayoutDestination records the provider's verified payout destination.
func (r *Repository) SetPayoutDestination(ctx context.Context, id uuid.UUID, destination string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET payout_destination = $1, updated_at = now() WHERE id = $2
	`, destination, id)
	return err
}

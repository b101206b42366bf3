package referral

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

var _ Records = (*Repository)(nil)

// CreateRecord registers a pending referral at signup. The unique index on
// referred_id makes a second referral of the same user a conflict; callers
// treat that as "already referred".
func (r *Repository) CreateRecord(ctx context.Context, referrerID, referredID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO referral_records (id, referrer_id, referred_id, status)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), referrerID, referredID, models.ReferralStatusPending)
	return err
}

func (r *Repository) FindByReferredForUpdate(ctx context.Context, tx pgx.Tx, referredID uuid.UUID) (*models.ReferralRecord, error) {
	var rec models.ReferralRecord
	err := tx.QueryRow(ctx, `
		SELECT id, referrer_id, referred_id, status, referred_rewarded, referrer_rewarded, completed_at, created_at
		FROM referral_records WHERE referred_id = $1 FOR UPDATE
	`, referredID).Scan(&rec.ID, &rec.ReferrerID, &rec.ReferredID, &rec.Status, &rec.ReferredRewarded, &rec.ReferrerRewarded, &rec.CompletedAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE referral_records SET status = $1, completed_at = now()
		WHERE id = $2 AND status = $3
	`, models.ReferralStatusCompleted, id, models.ReferralStatusPending)
	return err
}

func (r *Repository) SetReferredRewarded(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE referral_records SET referred_rewarded = TRUE
		WHERE id = $1 AND referred_rewarded = FALSE
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) SetReferrerRewarded(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE referral_records SET referrer_rewarded = TRUE
		WHERE id = $1 AND referrer_rewarded = FALSE
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

package tasks

import (
	"context"

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

func (r *Repository) CreateTask(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, requester_id, title, description, status, insurance_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, t.ID, t.RequesterID, t.Title, t.Description, t.Status, t.InsuranceCents).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *Repository) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := r.pool.QueryRow(ctx, `
		SELECT id, requester_id, title, description, status, insurance_cents, accepted_offer_id, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.RequesterID, &t.Title, &t.Description, &t.Status, &t.InsuranceCents, &t.AcceptedOfferID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) CreateOffer(ctx context.Context, o *models.Offer) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO offers (id, task_id, provider_id, price_cents, message, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, o.ID, o.TaskID, o.ProviderID, o.PriceCents, o.Message, o.Status).Scan(&o.CreatedAt)
}

func (r *Repository) GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var o models.Offer
	err := r.pool.QueryRow(ctx, `
		SELECT id, task_id, provider_id, price_cents, message, status, created_at
		FROM offers WHERE id = $1
	`, id).Scan(&o.ID, &o.TaskID, &o.ProviderID, &o.PriceCents, &o.Message, &o.Status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// AcceptOffer marks the offer accepted and books the task. The status guards
// make a second acceptance a no-op reported via the returned bool.
func (r *Repository) AcceptOffer(ctx context.Context, taskID, offerID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, accepted_offer_id = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.TaskStatusBooked, offerID, taskID, models.TaskStatusOpen)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE offers SET status = $1 WHERE id = $2
	`, models.OfferStatusAccepted, offerID)
	return true, err
}

// MarkPaidTx reflects a captured payment on the task, inside the capture
// transaction.
func (r *Repository) MarkPaidTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE tasks SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.TaskStatusPaid, taskID, models.TaskStatusBooked)
	return err
}

func (r *Repository) MarkCompleted(ctx context.Context, taskID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.TaskStatusCompleted, taskID, models.TaskStatusPaid)
	return err
}

func (r *Repository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, requester_id, title, description, status, insurance_cents, accepted_offer_id, created_at, updated_at
		FROM tasks WHERE requester_id = $1 ORDER BY created_at DESC
	`, requesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.RequesterID, &t.Title, &t.Description, &t.Status, &t.InsuranceCents, &t.AcceptedOfferID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

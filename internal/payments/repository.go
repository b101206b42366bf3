package payments

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

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const escrowColumns = `id, task_id, offer_id, requester_id, provider_id, base_amount_cents,
	processor_fee_cents, platform_commission_cents, total_amount_cents, refunded_cents,
	status, external_reference, created_at, updated_at`

func scanEscrow(row pgx.Row) (*models.EscrowPayment, error) {
	var p models.EscrowPayment
	err := row.Scan(&p.ID, &p.TaskID, &p.OfferID, &p.RequesterID, &p.ProviderID, &p.BaseAmountCents,
		&p.ProcessorFeeCents, &p.PlatformCommissionCents, &p.TotalAmountCents, &p.RefundedCents,
		&p.Status, &p.ExternalReference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) Create(ctx context.Context, p *models.EscrowPayment) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO escrow_payments (id, task_id, offer_id, requester_id, provider_id, base_amount_cents,
			processor_fee_cents, platform_commission_cents, total_amount_cents, status, external_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, p.ID, p.TaskID, p.OfferID, p.RequesterID, p.ProviderID, p.BaseAmountCents,
		p.ProcessorFeeCents, p.PlatformCommissionCents, p.TotalAmountCents, p.Status, p.ExternalReference).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrow_payments WHERE id = $1
	`, id))
}

func (r *Repository) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.EscrowPayment, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrow_payments WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1
	`, taskID))
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.EscrowPayment, error) {
	return scanEscrow(tx.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrow_payments WHERE id = $1 FOR UPDATE
	`, id))
}

// MarkAuthorized records the opened session: pending -> authorized plus the
// processor's session reference. The status guard keeps the transition
// monotone.
func (r *Repository) MarkAuthorized(ctx context.Context, id uuid.UUID, externalRef string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_payments SET status = $1, external_reference = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.PaymentStatusAuthorized, externalRef, id, models.PaymentStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkFailed terminates a payment that never reached capture.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_payments SET status = $1, updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)
	`, models.PaymentStatusFailed, id, models.PaymentStatusPending, models.PaymentStatusAuthorized)
	return err
}

// CaptureTx atomically transitions the payment with the given processor
// reference to captured and locks it. Returns (payment, false) when the
// payment is already captured or beyond, and (nil, false) when the reference
// is unknown.
func (r *Repository) CaptureTx(ctx context.Context, tx pgx.Tx, externalRef string) (*models.EscrowPayment, bool, error) {
	p, err := scanEscrow(tx.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrow_payments WHERE external_reference = $1 FOR UPDATE
	`, externalRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_payments SET status = $1, updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)
	`, models.PaymentStatusCaptured, p.ID, models.PaymentStatusPending, models.PaymentStatusAuthorized)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		return p, false, nil
	}
	p.Status = models.PaymentStatusCaptured
	return p, true, nil
}

// MarkReleasedTx transitions captured -> released within the caller's
// transaction. Returns false when the payment was not captured.
func (r *Repository) MarkReleasedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_payments SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.PaymentStatusReleased, id, models.PaymentStatusCaptured)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRefundedTx transitions captured -> refunded.
func (r *Repository) MarkRefundedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_payments SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.PaymentStatusRefunded, id, models.PaymentStatusCaptured)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AddRefundedCentsTx accumulates the refunded total on the payment row.
func (r *Repository) AddRefundedCentsTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		UPDATE escrow_payments SET refunded_cents = refunded_cents + $1, updated_at = now()
		WHERE id = $2
		RETURNING refunded_cents
	`, amountCents, id).Scan(&total)
	return total, err
}

func (r *Repository) CreatePayoutTx(ctx context.Context, tx pgx.Tx, t *models.PayoutTransfer) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payout_transfers (id, escrow_payment_id, provider_id, amount_cents, status, external_transfer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, t.ID, t.EscrowPaymentID, t.ProviderID, t.AmountCents, t.Status, t.ExternalTransferID).Scan(&t.CreatedAt)
}

func (r *Repository) ListPayoutsByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.PayoutTransfer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, escrow_payment_id, provider_id, amount_cents, status, external_transfer_id, created_at
		FROM payout_transfers WHERE provider_id = $1 ORDER BY created_at DESC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PayoutTransfer
	for rows.Next() {
		var t models.PayoutTransfer
		if err := rows.Scan(&t.ID, &t.EscrowPaymentID, &t.ProviderID, &t.AmountCents, &t.Status, &t.ExternalTransferID, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

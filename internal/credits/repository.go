package credits

import (
	"context"
	"errors"
	"time"

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

const creditAccountColumns = `id, owner_id, role, balance, free_credit_used, unlimited_until, created_at, updated_at`

func scanCreditAccount(row pgx.Row) (*models.CreditAccount, error) {
	var a models.CreditAccount
	err := row.Scan(&a.ID, &a.OwnerID, &a.Role, &a.Balance, &a.FreeCreditUsed, &a.UnlimitedUntil, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetOrCreate returns the (owner, role) account, creating it lazily.
func (r *Repository) GetOrCreate(ctx context.Context, ownerID uuid.UUID, role string) (*models.CreditAccount, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO credit_accounts (id, owner_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, role) DO NOTHING
	`, uuid.New(), ownerID, role)
	if err != nil {
		return nil, err
	}
	return scanCreditAccount(r.pool.QueryRow(ctx, `
		SELECT `+creditAccountColumns+` FROM credit_accounts WHERE owner_id = $1 AND role = $2
	`, ownerID, role))
}

// GetOrCreateForUpdate locks the (owner, role) account row, creating it
// lazily. Call within a transaction; the lock holds until commit/rollback so
// concurrent mutations of the same account serialize.
func (r *Repository) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, role string) (*models.CreditAccount, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_accounts (id, owner_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, role) DO NOTHING
	`, uuid.New(), ownerID, role)
	if err != nil {
		return nil, err
	}
	return scanCreditAccount(tx.QueryRow(ctx, `
		SELECT `+creditAccountColumns+` FROM credit_accounts WHERE owner_id = $1 AND role = $2 FOR UPDATE
	`, ownerID, role))
}

// AddBalance adds amount and returns the new balance.
func (r *Repository) AddBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error) {
	var newBalance int
	err := tx.QueryRow(ctx, `
		UPDATE credit_accounts SET balance = balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance
	`, amount, accountID).Scan(&newBalance)
	return newBalance, err
}

// DecrementBalance deducts amount only if the balance covers it. Returns
// pgx.ErrNoRows when the guard fails; the balance is never written negative.
func (r *Repository) DecrementBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error) {
	var newBalance int
	err := tx.QueryRow(ctx, `
		UPDATE credit_accounts SET balance = balance - $1, updated_at = now()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, amount, accountID).Scan(&newBalance)
	return newBalance, err
}

// SetFreeCreditUsed flips the free-use flag. The WHERE guard keeps the flag
// monotone; returns true when this call performed the transition.
func (r *Repository) SetFreeCreditUsed(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE credit_accounts SET free_credit_used = TRUE, updated_at = now()
		WHERE id = $1 AND free_credit_used = FALSE
	`, accountID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExtendUnlimitedUntil sets the unlimited pass expiry, never shortening an
// already-active pass.
func (r *Repository) ExtendUnlimitedUntil(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, until time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE credit_accounts
		SET unlimited_until = GREATEST(COALESCE(unlimited_until, 'epoch'::timestamptz), $1), updated_at = now()
		WHERE id = $2
	`, until, accountID)
	return err
}

// AppendEntry inserts a ledger entry inside the given transaction.
func (r *Repository) AppendEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, account_id, action, delta, balance_after, reference, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Action, e.Delta, e.BalanceAfter, e.Reference, e.Description).Scan(&e.CreatedAt)
}

func (r *Repository) ListEntries(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, action, delta, balance_after, reference, description, created_at
		FROM credit_ledger WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Action, &e.Delta, &e.BalanceAfter, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// --- credit package catalog (read-only to the core) ---

func (r *Repository) GetPackage(ctx context.Context, id uuid.UUID) (*models.CreditPackage, error) {
	var p models.CreditPackage
	err := r.pool.QueryRow(ctx, `
		SELECT id, role, name, price_cents, credit_amount, unlimited_validity_days, active
		FROM credit_packages WHERE id = $1
	`, id).Scan(&p.ID, &p.Role, &p.Name, &p.PriceCents, &p.CreditAmount, &p.UnlimitedValidityDays, &p.Active)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListPackages(ctx context.Context, role string) ([]*models.CreditPackage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, role, name, price_cents, credit_amount, unlimited_validity_days, active
		FROM credit_packages WHERE role = $1 AND active ORDER BY price_cents ASC
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditPackage
	for rows.Next() {
		var p models.CreditPackage
		if err := rows.Scan(&p.ID, &p.Role, &p.Name, &p.PriceCents, &p.CreditAmount, &p.UnlimitedValidityDays, &p.Active); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

// --- purchase rows (idempotent checkout confirmation) ---

func (r *Repository) CreatePurchase(ctx context.Context, p *models.CreditPurchase) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO credit_purchases (id, owner_id, role, package_id, price_cents, session_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, p.ID, p.OwnerID, p.Role, p.PackageID, p.PriceCents, p.SessionRef, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetPurchaseBySessionForUpdate locks the purchase row for the checkout
// session, or returns nil when the session is unknown.
func (r *Repository) GetPurchaseBySessionForUpdate(ctx context.Context, tx pgx.Tx, sessionRef string) (*models.CreditPurchase, error) {
	var p models.CreditPurchase
	err := tx.QueryRow(ctx, `
		SELECT id, owner_id, role, package_id, price_cents, session_ref, status, created_at, updated_at
		FROM credit_purchases WHERE session_ref = $1 FOR UPDATE
	`, sessionRef).Scan(&p.ID, &p.OwnerID, &p.Role, &p.PackageID, &p.PriceCents, &p.SessionRef, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkPurchaseCompleted transitions pending -> completed. Returns true when
// this call performed the transition.
func (r *Repository) MarkPurchaseCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE credit_purchases SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.PurchaseStatusCompleted, id, models.PurchaseStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

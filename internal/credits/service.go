package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localhive/backend/internal/models"
	"github.com/localhive/backend/internal/notify"
)

// Eligibility reasons. PolicyDenied is a value, not an error: callers branch
// on Allowed/Reason.
const (
	ReasonFree      = "free"
	ReasonUnlimited = "unlimited"
	ReasonCredits   = "credits"
	ReasonNoCredits = "no_credits"
	ReasonUngated   = "ungated"
)

// ErrInvariantViolation indicates a mutation that would break the balance
// invariant (e.g. a decrement past zero). It aborts the transaction and must
// never be reachable through the public API under correct locking.
var ErrInvariantViolation = errors.New("credit ledger invariant violation")

// ErrPackageUnavailable is returned when a purchase names an inactive package
// or one sold for a different role.
var ErrPackageUnavailable = errors.New("credit package unavailable for role")

type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Balance int    `json:"balance"`
}

// Store is the persistence surface the service needs. *Repository implements
// it over pgx; tests supply an in-memory version.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetOrCreate(ctx context.Context, ownerID uuid.UUID, role string) (*models.CreditAccount, error)
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, role string) (*models.CreditAccount, error)
	AddBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error)
	DecrementBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error)
	SetFreeCreditUsed(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (bool, error)
	ExtendUnlimitedUntil(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, until time.Time) error
	AppendEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	GetPackage(ctx context.Context, id uuid.UUID) (*models.CreditPackage, error)
	CreatePurchase(ctx context.Context, p *models.CreditPurchase) error
	GetPurchaseBySessionForUpdate(ctx context.Context, tx pgx.Tx, sessionRef string) (*models.CreditPurchase, error)
	MarkPurchaseCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// QualifyingActionFunc signals the referral engine that a user performed
// their first qualifying action. Runs inside the consuming transaction.
// Wired by main to break the credits <-> referral construction cycle.
type QualifyingActionFunc func(ctx context.Context, tx pgx.Tx, userID uuid.UUID, role string) error

// OpenCheckoutFunc opens a processor checkout session and returns its
// reference and redirect URL. Wired by main over the processor client.
type OpenCheckoutFunc func(ctx context.Context, amountCents int64, metadata map[string]string) (ref, url string, err error)

// Service is the credit-gating engine: balance tracking, free-tier and
// unlimited-pass semantics, and the audit ledger behind them.
type Service struct {
	store        Store
	policies     PolicyTable
	notifier     notify.Notifier
	openCheckout OpenCheckoutFunc
	onQualifying QualifyingActionFunc
	now          func() time.Time
	log          *slog.Logger
}

func NewService(store Store, policies PolicyTable, notifier notify.Notifier, openCheckout OpenCheckoutFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Service{
		store:        store,
		policies:     policies,
		notifier:     notifier,
		openCheckout: openCheckout,
		now:          time.Now,
		log:          log,
	}
}

// SetQualifyingAction wires the referral engine hook. Call during startup,
// before the service handles requests.
func (s *Service) SetQualifyingAction(fn QualifyingActionFunc) {
	s.onQualifying = fn
}

// CheckEligibility reports whether the (owner, role) account may perform a
// gated action right now, without consuming anything. Precedence:
// free first use > active unlimited pass > positive balance > denial.
func (s *Service) CheckEligibility(ctx context.Context, ownerID uuid.UUID, role string) (Eligibility, error) {
	p := s.policies.For(role)
	if !p.Gated {
		return Eligibility{Allowed: true, Reason: ReasonUngated}, nil
	}
	acc, err := s.store.GetOrCreate(ctx, ownerID, role)
	if err != nil {
		return Eligibility{}, err
	}
	return evaluate(p, acc, s.now()), nil
}

func evaluate(p Policy, acc *models.CreditAccount, now time.Time) Eligibility {
	switch {
	case p.FreeFirstUse && !acc.FreeCreditUsed:
		return Eligibility{Allowed: true, Reason: ReasonFree, Balance: acc.Balance}
	case acc.UnlimitedActive(now):
		return Eligibility{Allowed: true, Reason: ReasonUnlimited, Balance: acc.Balance}
	case acc.Balance > 0:
		return Eligibility{Allowed: true, Reason: ReasonCredits, Balance: acc.Balance}
	default:
		return Eligibility{Allowed: false, Reason: ReasonNoCredits, Balance: acc.Balance}
	}
}

// ConsumeCredit charges one gated action to the (owner, role) account.
// Eligibility is re-evaluated under the account row lock so a stale read can
// never double-spend. On denial nothing is written. The first free
// consumption signals the referral engine inside the same transaction.
func (s *Service) ConsumeCredit(ctx context.Context, ownerID uuid.UUID, role, reference string) (Eligibility, error) {
	p := s.policies.For(role)
	if !p.Gated {
		return Eligibility{Allowed: true, Reason: ReasonUngated}, nil
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Eligibility{}, err
	}
	defer tx.Rollback(ctx)

	acc, err := s.store.GetOrCreateForUpdate(ctx, tx, ownerID, role)
	if err != nil {
		return Eligibility{}, err
	}
	el := evaluate(p, acc, s.now())
	if !el.Allowed {
		return el, nil
	}

	entry := &models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: acc.ID,
		Action:    models.CreditActionConsume,
		Reference: reference,
	}

	switch el.Reason {
	case ReasonFree:
		first, err := s.store.SetFreeCreditUsed(ctx, tx, acc.ID)
		if err != nil {
			return Eligibility{}, err
		}
		if !first {
			// The row lock makes a concurrent flip impossible.
			return Eligibility{}, fmt.Errorf("%w: free credit flag already set under lock", ErrInvariantViolation)
		}
		entry.Delta = 0
		entry.BalanceAfter = acc.Balance
		entry.Description = "free first use"
		if err := s.store.AppendEntry(ctx, tx, entry); err != nil {
			return Eligibility{}, err
		}
		if s.onQualifying != nil {
			if err := s.onQualifying(ctx, tx, ownerID, role); err != nil {
				return Eligibility{}, fmt.Errorf("referral qualifying action: %w", err)
			}
		}
	case ReasonUnlimited:
		entry.Delta = 0
		entry.BalanceAfter = acc.Balance
		entry.Description = "unlimited pass"
		if err := s.store.AppendEntry(ctx, tx, entry); err != nil {
			return Eligibility{}, err
		}
	case ReasonCredits:
		newBalance, err := s.store.DecrementBalance(ctx, tx, acc.ID, 1)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Eligibility{}, fmt.Errorf("%w: decrement would go negative", ErrInvariantViolation)
			}
			return Eligibility{}, err
		}
		entry.Delta = -1
		entry.BalanceAfter = newBalance
		if err := s.store.AppendEntry(ctx, tx, entry); err != nil {
			return Eligibility{}, err
		}
		el.Balance = newBalance
	}

	if err := tx.Commit(ctx); err != nil {
		return Eligibility{}, err
	}
	return el, nil
}

// GrantCredits adds amount credits in its own transaction.
func (s *Service) GrantCredits(ctx context.Context, ownerID uuid.UUID, role string, amount int, action, reference, description string) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.GrantCreditsTx(ctx, tx, ownerID, role, amount, action, reference, description); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GrantCreditsTx adds amount credits within the caller's transaction, writing
// the mutation and its audit entry as one unit. Negative amounts
// (admin_adjust) fail rather than take the balance below zero.
func (s *Service) GrantCreditsTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, role string, amount int, action, reference, description string) error {
	acc, err := s.store.GetOrCreateForUpdate(ctx, tx, ownerID, role)
	if err != nil {
		return err
	}
	var newBalance int
	if amount >= 0 {
		newBalance, err = s.store.AddBalance(ctx, tx, acc.ID, amount)
	} else {
		newBalance, err = s.store.DecrementBalance(ctx, tx, acc.ID, -amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: adjustment would go negative", ErrInvariantViolation)
		}
	}
	if err != nil {
		return err
	}
	return s.store.AppendEntry(ctx, tx, &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    acc.ID,
		Action:       action,
		Delta:        amount,
		BalanceAfter: newBalance,
		Reference:    reference,
		Description:  description,
	})
}

// GrantUnlimitedTx activates (or extends) an unlimited pass within the
// caller's transaction. The ledger entry carries a zero delta; the audit
// trail records the pass, not a balance change.
func (s *Service) GrantUnlimitedTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, role string, validityDays int, action, reference string) error {
	acc, err := s.store.GetOrCreateForUpdate(ctx, tx, ownerID, role)
	if err != nil {
		return err
	}
	until := s.now().AddDate(0, 0, validityDays)
	if acc.UnlimitedActive(s.now()) && acc.UnlimitedUntil.After(until) {
		until = *acc.UnlimitedUntil
	}
	if err := s.store.ExtendUnlimitedUntil(ctx, tx, acc.ID, until); err != nil {
		return err
	}
	return s.store.AppendEntry(ctx, tx, &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    acc.ID,
		Action:       action,
		Delta:        0,
		BalanceAfter: acc.Balance,
		Reference:    reference,
		Description:  fmt.Sprintf("unlimited pass until %s", until.Format(time.RFC3339)),
	})
}

// PurchaseCredits opens a processor checkout session for a catalog package
// and records a pending purchase keyed by the session reference. Credits are
// granted only when ConfirmPurchase sees the processor confirmation.
func (s *Service) PurchaseCredits(ctx context.Context, ownerID uuid.UUID, role string, packageID uuid.UUID) (redirectURL string, err error) {
	pkg, err := s.store.GetPackage(ctx, packageID)
	if err != nil {
		return "", err
	}
	if !pkg.Active || pkg.Role != role {
		return "", ErrPackageUnavailable
	}
	ref, url, err := s.openCheckout(ctx, pkg.PriceCents, map[string]string{
		"kind":       "credit_purchase",
		"owner_id":   ownerID.String(),
		"package_id": pkg.ID.String(),
	})
	if err != nil {
		return "", err
	}
	err = s.store.CreatePurchase(ctx, &models.CreditPurchase{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Role:       role,
		PackageID:  pkg.ID,
		PriceCents: pkg.PriceCents,
		SessionRef: ref,
		Status:     models.PurchaseStatusPending,
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// ConfirmPurchase grants the purchased package once the processor confirms
// the checkout session. Idempotent: a purchase already completed (or an
// unknown session) is a no-op.
func (s *Service) ConfirmPurchase(ctx context.Context, sessionRef string) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	purchase, err := s.store.GetPurchaseBySessionForUpdate(ctx, tx, sessionRef)
	if err != nil {
		return err
	}
	if purchase == nil {
		s.log.Warn("purchase confirmation for unknown session", "session_ref", sessionRef)
		return nil
	}
	first, err := s.store.MarkPurchaseCompleted(ctx, tx, purchase.ID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	pkg, err := s.store.GetPackage(ctx, purchase.PackageID)
	if err != nil {
		return err
	}
	if pkg.Unlimited() {
		err = s.GrantUnlimitedTx(ctx, tx, purchase.OwnerID, purchase.Role, pkg.UnlimitedValidityDays, models.CreditActionPurchase, sessionRef)
	} else {
		err = s.GrantCreditsTx(ctx, tx, purchase.OwnerID, purchase.Role, pkg.CreditAmount, models.CreditActionPurchase, sessionRef, pkg.Name)
	}
	if err != nil {
		return err
	}

	s.notifier.EmitTx(ctx, tx, notify.Event{
		Kind:        notify.EventCreditsPurchased,
		OwnerID:     purchase.OwnerID,
		Role:        purchase.Role,
		AmountCents: purchase.PriceCents,
		Credits:     pkg.CreditAmount,
		Reference:   sessionRef,
		Description: pkg.Name,
	})
	return tx.Commit(ctx)
}

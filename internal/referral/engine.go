package referral

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localhive/backend/internal/models"
	"github.com/localhive/backend/internal/notify"
)

// BonusCredits is the flat bonus issued to each side of a completed referral.
const BonusCredits = 5

// Records is the minimal referral persistence interface for the engine.
type Records interface {
	// FindByReferredForUpdate locks the referral record naming the user as
	// the referred party, or returns nil when none exists.
	FindByReferredForUpdate(ctx context.Context, tx pgx.Tx, referredID uuid.UUID) (*models.ReferralRecord, error)
	// MarkCompleted transitions pending -> completed; a no-op when already
	// completed.
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	// SetReferredRewarded flips the referred-side flag; returns true only
	// for the call that performed the transition.
	SetReferredRewarded(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	// SetReferrerRewarded is the referrer-side counterpart.
	SetReferrerRewarded(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// BonusGranter issues referral bonus credits inside the caller's transaction.
// Implemented by the credits service.
type BonusGranter interface {
	GrantCreditsTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, role string, amount int, action, reference, description string) error
}

// RoleDirectory resolves a user's own profile role. The referrer's bonus
// lands on the account matching the referrer's role, not the referred user's.
type RoleDirectory interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (string, error)
}

// Engine issues the one-time, two-sided referral bonus. Each side is an
// independent flag check-and-set in the same transaction as the grant, so
// concurrent duplicate calls for the same record reward each side exactly
// once.
type Engine struct {
	records   Records
	credits   BonusGranter
	directory RoleDirectory
	notifier  notify.Notifier
	log       *slog.Logger
}

func NewEngine(records Records, credits BonusGranter, directory RoleDirectory, notifier notify.Notifier, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Engine{records: records, credits: credits, directory: directory, notifier: notifier, log: log}
}

// OnQualifyingAction runs when a user performs their first qualifying action
// (first free credit consumption, or first released payout as a provider).
// No-op when the user was not referred. Runs inside the caller's transaction.
func (e *Engine) OnQualifyingAction(ctx context.Context, tx pgx.Tx, userID uuid.UUID, role string) error {
	rec, err := e.records.FindByReferredForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if rec.Status == models.ReferralStatusPending {
		if err := e.records.MarkCompleted(ctx, tx, rec.ID); err != nil {
			return err
		}
	}

	if first, err := e.records.SetReferredRewarded(ctx, tx, rec.ID); err != nil {
		return err
	} else if first {
		desc := "referral sign-up bonus"
		if err := e.credits.GrantCreditsTx(ctx, tx, rec.ReferredID, role, BonusCredits, models.CreditActionReferralBonus, rec.ID.String(), desc); err != nil {
			return fmt.Errorf("grant referred bonus: %w", err)
		}
		e.notifier.EmitTx(ctx, tx, notify.Event{
			Kind:        notify.EventReferralBonus,
			OwnerID:     rec.ReferredID,
			Role:        role,
			Credits:     BonusCredits,
			Reference:   rec.ID.String(),
			Description: desc,
		})
	}

	if first, err := e.records.SetReferrerRewarded(ctx, tx, rec.ID); err != nil {
		return err
	} else if first {
		referrerRole, err := e.directory.RoleOf(ctx, rec.ReferrerID)
		if err != nil {
			return fmt.Errorf("resolve referrer role: %w", err)
		}
		desc := "referral reward"
		if err := e.credits.GrantCreditsTx(ctx, tx, rec.ReferrerID, referrerRole, BonusCredits, models.CreditActionReferralBonus, rec.ID.String(), desc); err != nil {
			return fmt.Errorf("grant referrer bonus: %w", err)
		}
		e.notifier.EmitTx(ctx, tx, notify.Event{
			Kind:        notify.EventReferralBonus,
			OwnerID:     rec.ReferrerID,
			Role:        referrerRole,
			Credits:     BonusCredits,
			Reference:   rec.ID.String(),
			Description: desc,
		})
	}

	return nil
}

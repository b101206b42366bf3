package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localhive/backend/internal/identity"
	"github.com/localhive/backend/internal/models"
	"github.com/localhive/backend/internal/notify"
)

// ErrNotCaptured is returned when release or refund is attempted on a payment
// outside the captured state.
var ErrNotCaptured = errors.New("escrow payment is not captured")

// ErrInvalidTransition is returned for refund requests the state machine
// forbids (e.g. full refund after release).
var ErrInvalidTransition = errors.New("invalid escrow payment transition")

// Store is the escrow persistence surface. *Repository implements it over
// pgx; tests supply an in-memory version.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, p *models.EscrowPayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error)
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.EscrowPayment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.EscrowPayment, error)
	MarkAuthorized(ctx context.Context, id uuid.UUID, externalRef string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	CaptureTx(ctx context.Context, tx pgx.Tx, externalRef string) (*models.EscrowPayment, bool, error)
	MarkReleasedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	MarkRefundedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	AddRefundedCentsTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (int64, error)
	CreatePayoutTx(ctx context.Context, tx pgx.Tx, t *models.PayoutTransfer) error
	ListPayoutsByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.PayoutTransfer, error)
}

// TaskWorkflow is the collaborator callback used to reflect capture on the
// originating task.
type TaskWorkflow interface {
	MarkTaskPaidTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) error
}

// ReferralSignalFunc notifies the referral engine of a provider's first
// released payout, inside the release transaction.
type ReferralSignalFunc func(ctx context.Context, tx pgx.Tx, userID uuid.UUID, role string) error

// Gateway drives the escrow payment flow: fee and commission computation,
// session creation, capture, payout release and refund.
type Gateway struct {
	store          Store
	processor      ProcessorClient
	directory      identity.Directory
	fees           FeeModel
	notifier       notify.Notifier
	tasks          TaskWorkflow
	referralSignal ReferralSignalFunc
	log            *slog.Logger
}

func NewGateway(store Store, processor ProcessorClient, directory identity.Directory, fees FeeModel, notifier notify.Notifier, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Gateway{
		store:     store,
		processor: processor,
		directory: directory,
		fees:      fees,
		notifier:  notifier,
		log:       log,
	}
}

// SetTaskWorkflow wires the task status callback. Call during startup; breaks
// the payments <-> tasks construction cycle.
func (g *Gateway) SetTaskWorkflow(w TaskWorkflow) { g.tasks = w }

// SetReferralSignal wires the referral engine hook for released payouts.
func (g *Gateway) SetReferralSignal(fn ReferralSignalFunc) { g.referralSignal = fn }

// CreateEscrowSession prices the accepted offer and opens a processor
// checkout session. The base amount is the offer price plus the task's
// optional insurance add-on; the processor fee is layered on top; the
// platform commission is only recorded here and deducted from the provider's
// payout at release -- the requester never pays it.
func (g *Gateway) CreateEscrowSession(ctx context.Context, task *models.Task, offer *models.Offer) (*models.EscrowPayment, string, error) {
	base := offer.PriceCents + task.InsuranceCents
	completed, err := g.directory.CompletedOrders(ctx, offer.ProviderID)
	if err != nil {
		return nil, "", err
	}

	p := &models.EscrowPayment{
		ID:                      uuid.New(),
		TaskID:                  task.ID,
		OfferID:                 offer.ID,
		RequesterID:             task.RequesterID,
		ProviderID:              offer.ProviderID,
		BaseAmountCents:         base,
		ProcessorFeeCents:       g.fees.Fee(base),
		PlatformCommissionCents: Commission(completed, base),
		TotalAmountCents:        g.fees.Gross(base),
		Status:                  models.PaymentStatusPending,
	}
	if err := g.store.Create(ctx, p); err != nil {
		return nil, "", err
	}

	sess, err := g.processor.CreateCheckoutSession(ctx, p.TotalAmountCents, map[string]string{
		"payment_id": p.ID.String(),
		"task_id":    task.ID.String(),
	})
	if err != nil {
		if markErr := g.store.MarkFailed(ctx, p.ID); markErr != nil {
			g.log.Error("mark payment failed", "payment_id", p.ID, "error", markErr)
		}
		return nil, "", fmt.Errorf("open checkout session: %w", err)
	}
	if err := g.store.MarkAuthorized(ctx, p.ID, sess.Reference); err != nil {
		return nil, "", err
	}
	p.Status = models.PaymentStatusAuthorized
	p.ExternalReference = sess.Reference
	return p, sess.RedirectURL, nil
}

// ConfirmCapture records the processor's confirmation for the given session
// reference. Idempotent: once the payment is captured or beyond, repeated
// confirmations (duplicate webhooks, polling races) return without side
// effects.
func (g *Gateway) ConfirmCapture(ctx context.Context, externalRef string) error {
	tx, err := g.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p, transitioned, err := g.store.CaptureTx(ctx, tx, externalRef)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("unknown payment reference %q", externalRef)
	}
	if !transitioned {
		return nil
	}

	if err := g.processor.Capture(ctx, externalRef); err != nil {
		return fmt.Errorf("capture %q: %w", externalRef, err)
	}
	if g.tasks != nil {
		if err := g.tasks.MarkTaskPaidTx(ctx, tx, p.TaskID); err != nil {
			return fmt.Errorf("update task after capture: %w", err)
		}
	}
	g.notifier.EmitTx(ctx, tx, notify.Event{
		Kind:        notify.EventPaymentCaptured,
		OwnerID:     p.RequesterID,
		Role:        models.RoleRequester,
		AmountCents: p.TotalAmountCents,
		Reference:   externalRef,
	})
	return tx.Commit(ctx)
}

// ReleaseToProvider pays out a captured escrow payment: base minus platform
// commission. Preconditions: the payment is captured and the provider has an
// active payout destination -- a missing or disabled destination is fatal and
// surfaced for manual follow-up, never retried here. The provider's
// completed-order counter increments in the same transaction so the next
// commission read cannot race it.
func (g *Gateway) ReleaseToProvider(ctx context.Context, paymentID uuid.UUID) (*models.PayoutTransfer, error) {
	p, err := g.store.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusCaptured {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrNotCaptured, p.ID, p.Status)
	}

	dest, err := g.directory.PayoutDestination(ctx, p.ProviderID)
	if err != nil {
		return nil, err
	}
	if dest == "" {
		return nil, fmt.Errorf("%w: provider %s has no payout destination", ErrDestinationInvalid, p.ProviderID)
	}
	status, err := g.processor.GetAccountStatus(ctx, dest)
	if err != nil {
		return nil, err
	}
	if !status.PayoutsEnabled {
		return nil, fmt.Errorf("%w: payouts disabled for destination", ErrDestinationInvalid)
	}

	tx, err := g.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	locked, err := g.store.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if locked.Status != models.PaymentStatusCaptured {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrNotCaptured, locked.ID, locked.Status)
	}

	amount := locked.BaseAmountCents - locked.PlatformCommissionCents
	transferID, err := g.processor.Transfer(ctx, dest, amount)
	if err != nil {
		return nil, fmt.Errorf("transfer payout: %w", err)
	}

	payout := &models.PayoutTransfer{
		ID:                 uuid.New(),
		EscrowPaymentID:    locked.ID,
		ProviderID:         locked.ProviderID,
		AmountCents:        amount,
		Status:             models.PayoutStatusPaid,
		ExternalTransferID: transferID,
	}
	if err := g.store.CreatePayoutTx(ctx, tx, payout); err != nil {
		return nil, err
	}
	released, err := g.store.MarkReleasedTx(ctx, tx, locked.ID)
	if err != nil {
		return nil, err
	}
	if !released {
		return nil, fmt.Errorf("%w: payment %s left captured concurrently", ErrNotCaptured, locked.ID)
	}
	if err := g.directory.IncrementCompletedOrdersTx(ctx, tx, locked.ProviderID); err != nil {
		return nil, err
	}
	if g.referralSignal != nil {
		if err := g.referralSignal(ctx, tx, locked.ProviderID, models.RoleProvider); err != nil {
			return nil, fmt.Errorf("referral qualifying action: %w", err)
		}
	}
	g.notifier.EmitTx(ctx, tx, notify.Event{
		Kind:        notify.EventPaymentReleased,
		OwnerID:     locked.ProviderID,
		Role:        models.RoleProvider,
		AmountCents: amount,
		Reference:   transferID,
	})
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return payout, nil
}

// Refund returns money to the requester. amountCents == 0 means the full
// remaining charge. Full or partial refunds are allowed while captured (the
// payment becomes refunded once fully returned). After release only partial
// adjustments are accepted: the state stays released and the refunded total
// accumulates on the payment row.
func (g *Gateway) Refund(ctx context.Context, paymentID uuid.UUID, amountCents int64) error {
	tx, err := g.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p, err := g.store.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return err
	}

	remaining := p.TotalAmountCents - p.RefundedCents
	amount := amountCents
	if amount == 0 {
		amount = remaining
	}
	if amount <= 0 || amount > remaining {
		return fmt.Errorf("%w: refund of %d with %d refundable", ErrInvalidTransition, amount, remaining)
	}

	switch p.Status {
	case models.PaymentStatusCaptured:
		// ok
	case models.PaymentStatusReleased:
		if amount == remaining && p.RefundedCents == 0 {
			return fmt.Errorf("%w: full refund after release", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: refund while %s", ErrInvalidTransition, p.Status)
	}

	if err := g.processor.Refund(ctx, p.ExternalReference, amount); err != nil {
		return fmt.Errorf("refund %q: %w", p.ExternalReference, err)
	}
	total, err := g.store.AddRefundedCentsTx(ctx, tx, p.ID, amount)
	if err != nil {
		return err
	}
	if p.Status == models.PaymentStatusCaptured && total >= p.TotalAmountCents {
		if _, err := g.store.MarkRefundedTx(ctx, tx, p.ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// PaymentForTask returns the most recent escrow payment for a task.
func (g *Gateway) PaymentForTask(ctx context.Context, taskID uuid.UUID) (*models.EscrowPayment, error) {
	return g.store.GetByTaskID(ctx, taskID)
}

// PayoutsForProvider returns the provider's payout history, newest first.
func (g *Gateway) PayoutsForProvider(ctx context.Context, providerID uuid.UUID) ([]*models.PayoutTransfer, error) {
	return g.store.ListPayoutsByProvider(ctx, providerID)
}

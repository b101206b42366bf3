package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localhive/backend/internal/credits"
	"github.com/localhive/backend/internal/models"
	"github.com/localhive/backend/internal/payments"
)

// ErrNoCredits is returned when a provider without eligibility submits an offer.
var ErrNoCredits = errors.New("no credits available")

// ErrNotTaskOwner is returned when someone other than the requester drives
// the task forward.
var ErrNotTaskOwner = errors.New("not the task owner")

// ErrOfferMismatch is returned when the offer does not belong to the task.
var ErrOfferMismatch = errors.New("offer does not belong to task")

// ErrTaskNotOpen is returned when accepting an offer on a task that is no
// longer open.
var ErrTaskNotOpen = errors.New("task is not open")

// CreditConsumer charges a gated action to the provider's credit account.
type CreditConsumer interface {
	ConsumeCredit(ctx context.Context, ownerID uuid.UUID, role, reference string) (credits.Eligibility, error)
}

// TaskStore is the persistence surface the workflow needs. *Repository
// implements it over pgx; tests supply an in-memory version.
type TaskStore interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*models.Task, error)
	CreateOffer(ctx context.Context, o *models.Offer) error
	GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	AcceptOffer(ctx context.Context, taskID, offerID uuid.UUID) (bool, error)
	MarkPaidTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) error
	MarkCompleted(ctx context.Context, taskID uuid.UUID) error
}

// EscrowGateway is the payment surface the workflow drives.
type EscrowGateway interface {
	CreateEscrowSession(ctx context.Context, task *models.Task, offer *models.Offer) (*models.EscrowPayment, string, error)
	ReleaseToProvider(ctx context.Context, paymentID uuid.UUID) (*models.PayoutTransfer, error)
	PaymentForTask(ctx context.Context, taskID uuid.UUID) (*models.EscrowPayment, error)
}

// Service is the thin task/offer workflow around the monetization core:
// offer submission consumes a credit, acceptance opens the escrow session,
// completion releases the payout.
type Service struct {
	repo    TaskStore
	credits CreditConsumer
	gateway EscrowGateway
	log     *slog.Logger
}

func NewService(repo TaskStore, credits CreditConsumer, gateway EscrowGateway, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, credits: credits, gateway: gateway, log: log}
}

var _ payments.TaskWorkflow = (*Service)(nil)

// MarkTaskPaidTx implements payments.TaskWorkflow.
func (s *Service) MarkTaskPaidTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) error {
	return s.repo.MarkPaidTx(ctx, tx, taskID)
}

func (s *Service) CreateTask(ctx context.Context, requesterID uuid.UUID, title, description string, insuranceCents int64) (*models.Task, error) {
	t := &models.Task{
		ID:             uuid.New(),
		RequesterID:    requesterID,
		Title:          title,
		Description:    description,
		Status:         models.TaskStatusOpen,
		InsuranceCents: insuranceCents,
	}
	if err := s.repo.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return s.repo.GetTask(ctx, id)
}

func (s *Service) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*models.Task, error) {
	return s.repo.ListByRequester(ctx, requesterID)
}

// SubmitOffer consumes one credit from the provider (the authoritative check;
// the route middleware only pre-filters) and records the offer.
func (s *Service) SubmitOffer(ctx context.Context, taskID, providerID uuid.UUID, priceCents int64, message string) (*models.Offer, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusOpen {
		return nil, ErrTaskNotOpen
	}
	el, err := s.credits.ConsumeCredit(ctx, providerID, models.RoleProvider, "offer:"+taskID.String())
	if err != nil {
		return nil, err
	}
	if !el.Allowed {
		return nil, ErrNoCredits
	}
	o := &models.Offer{
		ID:         uuid.New(),
		TaskID:     taskID,
		ProviderID: providerID,
		PriceCents: priceCents,
		Message:    message,
		Status:     models.OfferStatusSubmitted,
	}
	if err := s.repo.CreateOffer(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// AcceptOffer books the task and opens the escrow checkout session. Returns
// the redirect URL the requester completes payment on.
func (s *Service) AcceptOffer(ctx context.Context, taskID, offerID, requesterID uuid.UUID) (string, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	if task.RequesterID != requesterID {
		return "", ErrNotTaskOwner
	}
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return "", err
	}
	if offer.TaskID != taskID {
		return "", ErrOfferMismatch
	}
	booked, err := s.repo.AcceptOffer(ctx, taskID, offerID)
	if err != nil {
		return "", err
	}
	if !booked {
		return "", ErrTaskNotOpen
	}
	_, redirectURL, err := s.gateway.CreateEscrowSession(ctx, task, offer)
	if err != nil {
		return "", fmt.Errorf("open escrow session: %w", err)
	}
	return redirectURL, nil
}

// ConfirmCompletion releases the escrow payout to the provider once the
// requester confirms the work is done.
func (s *Service) ConfirmCompletion(ctx context.Context, taskID, requesterID uuid.UUID) (*models.PayoutTransfer, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.RequesterID != requesterID {
		return nil, ErrNotTaskOwner
	}
	payment, err := s.gateway.PaymentForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	payout, err := s.gateway.ReleaseToProvider(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkCompleted(ctx, taskID); err != nil {
		return nil, err
	}
	return payout, nil
}

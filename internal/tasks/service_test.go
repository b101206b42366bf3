package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localhive/backend/internal/credits"
	"github.com/localhive/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type memTasks struct {
	tasks  map[uuid.UUID]*models.Task
	offers map[uuid.UUID]*models.Offer
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[uuid.UUID]*models.Task), offers: make(map[uuid.UUID]*models.Offer)}
}

func (m *memTasks) CreateTask(_ context.Context, t *models.Task) error {
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTasks) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) ListByRequester(_ context.Context, requesterID uuid.UUID) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range m.tasks {
		if t.RequesterID == requesterID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTasks) CreateOffer(_ context.Context, o *models.Offer) error {
	cp := *o
	m.offers[o.ID] = &cp
	return nil
}

func (m *memTasks) GetOffer(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (m *memTasks) AcceptOffer(_ context.Context, taskID, offerID uuid.UUID) (bool, error) {
	t, ok := m.tasks[taskID]
	if !ok || t.Status != models.TaskStatusOpen {
		return false, nil
	}
	t.Status = models.TaskStatusBooked
	t.AcceptedOfferID = &offerID
	if o, ok := m.offers[offerID]; ok {
		o.Status = models.OfferStatusAccepted
	}
	return true, nil
}

func (m *memTasks) MarkPaidTx(_ context.Context, _ pgx.Tx, taskID uuid.UUID) error {
	if t, ok := m.tasks[taskID]; ok && t.Status == models.TaskStatusBooked {
		t.Status = models.TaskStatusPaid
	}
	return nil
}

func (m *memTasks) MarkCompleted(_ context.Context, taskID uuid.UUID) error {
	if t, ok := m.tasks[taskID]; ok && t.Status == models.TaskStatusPaid {
		t.Status = models.TaskStatusCompleted
	}
	return nil
}

type fakeConsumer struct {
	eligibility credits.Eligibility
	references  []string
}

func (f *fakeConsumer) ConsumeCredit(_ context.Context, _ uuid.UUID, _ string, reference string) (credits.Eligibility, error) {
	f.references = append(f.references, reference)
	return f.eligibility, nil
}

type fakeGateway struct {
	payment      *models.EscrowPayment
	redirectURL  string
	sessionCalls int
	releaseCalls int
	payout       *models.PayoutTransfer
	releaseErr   error
}

func (f *fakeGateway) CreateEscrowSession(_ context.Context, task *models.Task, offer *models.Offer) (*models.EscrowPayment, string, error) {
	f.sessionCalls++
	f.payment = &models.EscrowPayment{
		ID:              uuid.New(),
		TaskID:          task.ID,
		OfferID:         offer.ID,
		RequesterID:     task.RequesterID,
		ProviderID:      offer.ProviderID,
		BaseAmountCents: offer.PriceCents + task.InsuranceCents,
		Status:          models.PaymentStatusAuthorized,
	}
	return f.payment, f.redirectURL, nil
}

func (f *fakeGateway) ReleaseToProvider(_ context.Context, paymentID uuid.UUID) (*models.PayoutTransfer, error) {
	f.releaseCalls++
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	f.payout = &models.PayoutTransfer{ID: uuid.New(), EscrowPaymentID: paymentID, Status: models.PayoutStatusPaid}
	return f.payout, nil
}

func (f *fakeGateway) PaymentForTask(_ context.Context, _ uuid.UUID) (*models.EscrowPayment, error) {
	if f.payment == nil {
		return nil, pgx.ErrNoRows
	}
	return f.payment, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func openTask(store *memTasks, requesterID uuid.UUID) *models.Task {
	t := &models.Task{ID: uuid.New(), RequesterID: requesterID, Status: models.TaskStatusOpen}
	_ = store.CreateTask(context.Background(), t)
	return t
}

// ---------------------------------------------------------------------------
// SubmitOffer
// ---------------------------------------------------------------------------

func TestSubmitOffer_ConsumesOneCredit(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: true, Reason: credits.ReasonCredits}}
	svc := NewService(store, consumer, &fakeGateway{}, nil)

	task := openTask(store, uuid.New())
	offer, err := svc.SubmitOffer(context.Background(), task.ID, uuid.New(), 5000, "can do tomorrow")
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if offer.Status != models.OfferStatusSubmitted {
		t.Fatalf("offer status %q", offer.Status)
	}
	if len(consumer.references) != 1 || consumer.references[0] != "offer:"+task.ID.String() {
		t.Fatalf("credit references %v, want one offer:<task> entry", consumer.references)
	}
}

func TestSubmitOffer_DeniedWithoutCredits(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: false, Reason: credits.ReasonNoCredits}}
	svc := NewService(store, consumer, &fakeGateway{}, nil)

	task := openTask(store, uuid.New())
	_, err := svc.SubmitOffer(context.Background(), task.ID, uuid.New(), 5000, "")
	if !errors.Is(err, ErrNoCredits) {
		t.Fatalf("err = %v, want ErrNoCredits", err)
	}
	if len(store.offers) != 0 {
		t.Fatal("offer recorded despite denial")
	}
}

func TestSubmitOffer_ClosedTask(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: true}}
	svc := NewService(store, consumer, &fakeGateway{}, nil)

	task := openTask(store, uuid.New())
	store.tasks[task.ID].Status = models.TaskStatusBooked

	_, err := svc.SubmitOffer(context.Background(), task.ID, uuid.New(), 5000, "")
	if !errors.Is(err, ErrTaskNotOpen) {
		t.Fatalf("err = %v, want ErrTaskNotOpen", err)
	}
	if len(consumer.references) != 0 {
		t.Fatal("credit consumed for a closed task")
	}
}

// ---------------------------------------------------------------------------
// AcceptOffer
// ---------------------------------------------------------------------------

func TestAcceptOffer_OpensEscrowSession(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: true}}
	gw := &fakeGateway{redirectURL: "https://pay.example/cs_1"}
	svc := NewService(store, consumer, gw, nil)

	requester := uuid.New()
	task := openTask(store, requester)
	offer, err := svc.SubmitOffer(context.Background(), task.ID, uuid.New(), 5000, "")
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}

	redirect, err := svc.AcceptOffer(context.Background(), task.ID, offer.ID, requester)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if redirect != "https://pay.example/cs_1" {
		t.Fatalf("redirect %q", redirect)
	}
	if gw.sessionCalls != 1 {
		t.Fatalf("escrow session opened %d times, want 1", gw.sessionCalls)
	}
	if store.tasks[task.ID].Status != models.TaskStatusBooked {
		t.Fatalf("task status %q, want booked", store.tasks[task.ID].Status)
	}
}

func TestAcceptOffer_NotOwner(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: true}}
	svc := NewService(store, consumer, &fakeGateway{}, nil)

	task := openTask(store, uuid.New())
	offer, _ := svc.SubmitOffer(context.Background(), task.ID, uuid.New(), 5000, "")

	_, err := svc.AcceptOffer(context.Background(), task.ID, offer.ID, uuid.New())
	if !errors.Is(err, ErrNotTaskOwner) {
		t.Fatalf("err = %v, want ErrNotTaskOwner", err)
	}
}

func TestAcceptOffer_OfferFromAnotherTask(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: true}}
	svc := NewService(store, consumer, &fakeGateway{}, nil)

	requester := uuid.New()
	task := openTask(store, requester)
	other := openTask(store, requester)
	offer, _ := svc.SubmitOffer(context.Background(), other.ID, uuid.New(), 5000, "")

	_, err := svc.AcceptOffer(context.Background(), task.ID, offer.ID, requester)
	if !errors.Is(err, ErrOfferMismatch) {
		t.Fatalf("err = %v, want ErrOfferMismatch", err)
	}
}

func TestAcceptOffer_SecondAcceptanceRejected(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: true}}
	gw := &fakeGateway{}
	svc := NewService(store, consumer, gw, nil)

	requester := uuid.New()
	task := openTask(store, requester)
	offer, _ := svc.SubmitOffer(context.Background(), task.ID, uuid.New(), 5000, "")

	if _, err := svc.AcceptOffer(context.Background(), task.ID, offer.ID, requester); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := svc.AcceptOffer(context.Background(), task.ID, offer.ID, requester); !errors.Is(err, ErrTaskNotOpen) {
		t.Fatalf("second accept err = %v, want ErrTaskNotOpen", err)
	}
	if gw.sessionCalls != 1 {
		t.Fatalf("escrow session opened %d times, want 1", gw.sessionCalls)
	}
}

// ---------------------------------------------------------------------------
// ConfirmCompletion
// ---------------------------------------------------------------------------

func TestConfirmCompletion_ReleasesPayout(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: true}}
	gw := &fakeGateway{}
	svc := NewService(store, consumer, gw, nil)

	requester := uuid.New()
	task := openTask(store, requester)
	offer, _ := svc.SubmitOffer(context.Background(), task.ID, uuid.New(), 5000, "")
	if _, err := svc.AcceptOffer(context.Background(), task.ID, offer.ID, requester); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	// Capture confirmation arrives via the payment webhook.
	if err := svc.MarkTaskPaidTx(context.Background(), nil, task.ID); err != nil {
		t.Fatalf("MarkTaskPaidTx: %v", err)
	}

	payout, err := svc.ConfirmCompletion(context.Background(), task.ID, requester)
	if err != nil {
		t.Fatalf("ConfirmCompletion: %v", err)
	}
	if payout == nil || gw.releaseCalls != 1 {
		t.Fatalf("payout %v after %d release calls, want one release", payout, gw.releaseCalls)
	}
	if store.tasks[task.ID].Status != models.TaskStatusCompleted {
		t.Fatalf("task status %q, want completed", store.tasks[task.ID].Status)
	}
}

func TestConfirmCompletion_ReleaseFailureLeavesTaskPaid(t *testing.T) {
	store := newMemTasks()
	consumer := &fakeConsumer{eligibility: credits.Eligibility{Allowed: true}}
	gw := &fakeGateway{releaseErr: errors.New("payout destination invalid")}
	svc := NewService(store, consumer, gw, nil)

	requester := uuid.New()
	task := openTask(store, requester)
	offer, _ := svc.SubmitOffer(context.Background(), task.ID, uuid.New(), 5000, "")
	if _, err := svc.AcceptOffer(context.Background(), task.ID, offer.ID, requester); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	_ = svc.MarkTaskPaidTx(context.Background(), nil, task.ID)

	if _, err := svc.ConfirmCompletion(context.Background(), task.ID, requester); err == nil {
		t.Fatal("expected release failure to surface")
	}
	if store.tasks[task.ID].Status != models.TaskStatusPaid {
		t.Fatalf("task status %q, want paid after failed release", store.tasks[task.ID].Status)
	}
}

package referral

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/localhive/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks. The record store's mutex stands in for the row lock: FindByReferred-
// ForUpdate acquires it and the transaction releases it on Commit/Rollback,
// so concurrent qualifying actions serialize the way they do against Postgres.
// ---------------------------------------------------------------------------

type lockTx struct {
	unlock func()
	done   bool
}

func (t *lockTx) release() {
	if !t.done {
		t.done = true
		t.unlock()
	}
}

func (t *lockTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *lockTx) Commit(context.Context) error          { t.release(); return nil }
func (t *lockTx) Rollback(context.Context) error        { t.release(); return nil }
func (t *lockTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *lockTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *lockTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *lockTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *lockTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *lockTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *lockTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *lockTx) Conn() *pgx.Conn { return nil }

type memRecords struct {
	mu  sync.Mutex
	rec *models.ReferralRecord
}

func (m *memRecords) begin() pgx.Tx {
	m.mu.Lock()
	return &lockTx{unlock: m.mu.Unlock}
}

func (m *memRecords) FindByReferredForUpdate(_ context.Context, _ pgx.Tx, referredID uuid.UUID) (*models.ReferralRecord, error) {
	if m.rec == nil || m.rec.ReferredID != referredID {
		return nil, nil
	}
	cp := *m.rec
	return &cp, nil
}

func (m *memRecords) MarkCompleted(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	if m.rec != nil && m.rec.ID == id && m.rec.Status == models.ReferralStatusPending {
		m.rec.Status = models.ReferralStatusCompleted
	}
	return nil
}

func (m *memRecords) SetReferredRewarded(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	if m.rec == nil || m.rec.ID != id || m.rec.ReferredRewarded {
		return false, nil
	}
	m.rec.ReferredRewarded = true
	return true, nil
}

func (m *memRecords) SetReferrerRewarded(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	if m.rec == nil || m.rec.ID != id || m.rec.ReferrerRewarded {
		return false, nil
	}
	m.rec.ReferrerRewarded = true
	return true, nil
}

type grant struct {
	ownerID uuid.UUID
	role    string
	amount  int
	action  string
}

type fakeGranter struct {
	mu     sync.Mutex
	grants []grant
}

func (g *fakeGranter) GrantCreditsTx(_ context.Context, _ pgx.Tx, ownerID uuid.UUID, role string, amount int, action, _, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants = append(g.grants, grant{ownerID: ownerID, role: role, amount: amount, action: action})
	return nil
}

func (g *fakeGranter) snapshot() []grant {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]grant(nil), g.grants...)
}

type fakeDirectory struct {
	roles map[uuid.UUID]string
}

func (d *fakeDirectory) RoleOf(_ context.Context, userID uuid.UUID) (string, error) {
	return d.roles[userID], nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestOnQualifyingAction_RewardsBothSidesOnce(t *testing.T) {
	referrer, referred := uuid.New(), uuid.New()
	records := &memRecords{rec: &models.ReferralRecord{
		ID:         uuid.New(),
		ReferrerID: referrer,
		ReferredID: referred,
		Status:     models.ReferralStatusPending,
	}}
	granter := &fakeGranter{}
	dir := &fakeDirectory{roles: map[uuid.UUID]string{referrer: models.RoleRequester}}
	engine := NewEngine(records, granter, dir, nil, nil)

	tx := records.begin()
	if err := engine.OnQualifyingAction(context.Background(), tx, referred, models.RoleProvider); err != nil {
		t.Fatalf("OnQualifyingAction: %v", err)
	}
	_ = tx.Commit(context.Background())

	grants := granter.snapshot()
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	if grants[0].ownerID != referred || grants[0].role != models.RoleProvider || grants[0].amount != BonusCredits {
		t.Fatalf("referred-side grant wrong: %+v", grants[0])
	}
	if grants[1].ownerID != referrer || grants[1].role != models.RoleRequester || grants[1].amount != BonusCredits {
		t.Fatalf("referrer-side grant wrong: %+v", grants[1])
	}
	for _, g := range grants {
		if g.action != models.CreditActionReferralBonus {
			t.Fatalf("grant action %q, want %q", g.action, models.CreditActionReferralBonus)
		}
	}
	if records.rec.Status != models.ReferralStatusCompleted {
		t.Fatalf("record status %q, want completed", records.rec.Status)
	}
	if !records.rec.ReferredRewarded || !records.rec.ReferrerRewarded {
		t.Fatal("reward flags not both set")
	}
}

func TestOnQualifyingAction_ExactlyOnceUnderConcurrency(t *testing.T) {
	referrer, referred := uuid.New(), uuid.New()
	records := &memRecords{rec: &models.ReferralRecord{
		ID:         uuid.New(),
		ReferrerID: referrer,
		ReferredID: referred,
		Status:     models.ReferralStatusPending,
	}}
	granter := &fakeGranter{}
	dir := &fakeDirectory{roles: map[uuid.UUID]string{referrer: models.RoleProvider}}
	engine := NewEngine(records, granter, dir, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := records.begin()
			defer tx.Rollback(context.Background())
			if err := engine.OnQualifyingAction(context.Background(), tx, referred, models.RoleProvider); err != nil {
				t.Errorf("OnQualifyingAction: %v", err)
				return
			}
			_ = tx.Commit(context.Background())
		}()
	}
	wg.Wait()

	grants := granter.snapshot()
	var referredGrants, referrerGrants int
	for _, g := range grants {
		switch g.ownerID {
		case referred:
			referredGrants++
		case referrer:
			referrerGrants++
		}
	}
	if referredGrants != 1 || referrerGrants != 1 {
		t.Fatalf("expected exactly one grant per side, got referred=%d referrer=%d", referredGrants, referrerGrants)
	}
}

func TestOnQualifyingAction_NoRecordIsNoop(t *testing.T) {
	records := &memRecords{}
	granter := &fakeGranter{}
	engine := NewEngine(records, granter, &fakeDirectory{}, nil, nil)

	tx := records.begin()
	defer tx.Rollback(context.Background())
	if err := engine.OnQualifyingAction(context.Background(), tx, uuid.New(), models.RoleProvider); err != nil {
		t.Fatalf("OnQualifyingAction: %v", err)
	}
	if len(granter.snapshot()) != 0 {
		t.Fatal("no-op path issued grants")
	}
}

func TestOnQualifyingAction_SecondTriggerRewardsRemainingSide(t *testing.T) {
	// The referred side was already rewarded by an earlier trigger; a later
	// qualifying action must only pick up the referrer side.
	referrer, referred := uuid.New(), uuid.New()
	records := &memRecords{rec: &models.ReferralRecord{
		ID:               uuid.New(),
		ReferrerID:       referrer,
		ReferredID:       referred,
		Status:           models.ReferralStatusCompleted,
		ReferredRewarded: true,
	}}
	granter := &fakeGranter{}
	dir := &fakeDirectory{roles: map[uuid.UUID]string{referrer: models.RoleRequester}}
	engine := NewEngine(records, granter, dir, nil, nil)

	tx := records.begin()
	defer tx.Rollback(context.Background())
	if err := engine.OnQualifyingAction(context.Background(), tx, referred, models.RoleProvider); err != nil {
		t.Fatalf("OnQualifyingAction: %v", err)
	}
	_ = tx.Commit(context.Background())

	grants := granter.snapshot()
	if len(grants) != 1 || grants[0].ownerID != referrer {
		t.Fatalf("expected a single referrer-side grant, got %+v", grants)
	}
}

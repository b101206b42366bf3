package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/localhive/backend/internal/credits"
	"github.com/localhive/backend/internal/models"
)

type fakeChecker struct {
	eligibility credits.Eligibility
	err         error
	calls       int
}

func (f *fakeChecker) CheckEligibility(_ context.Context, _ uuid.UUID, _ string) (credits.Eligibility, error) {
	f.calls++
	return f.eligibility, f.err
}

// injectPrincipal wraps a handler to pre-set the principal in context,
// simulating what BearerAuth would do upstream.
func injectPrincipal(p *Principal, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// gate200 is a handler that writes 200 OK; it proves the middleware let the
// request through.
var gate200 = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// ---------------------------------------------------------------------------
// 1. Eligible account -> 200 OK
// ---------------------------------------------------------------------------

func TestCreditGate_Eligible(t *testing.T) {
	checker := &fakeChecker{eligibility: credits.Eligibility{Allowed: true, Reason: credits.ReasonCredits, Balance: 3}}
	handler := injectPrincipal(
		&Principal{AccountID: uuid.New(), Role: models.RoleProvider},
		CreditGate(checker)(gate200),
	)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if checker.calls != 1 {
		t.Fatalf("eligibility checked %d times, want 1", checker.calls)
	}
}

// ---------------------------------------------------------------------------
// 2. No credits -> 402 Payment Required
// ---------------------------------------------------------------------------

func TestCreditGate_NoCredits(t *testing.T) {
	checker := &fakeChecker{eligibility: credits.Eligibility{Allowed: false, Reason: credits.ReasonNoCredits}}
	handler := injectPrincipal(
		&Principal{AccountID: uuid.New(), Role: models.RoleProvider},
		CreditGate(checker)(gate200),
	)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "no_credits") {
		t.Errorf("expected no_credits error, got: %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 3. No principal in context -> 401
// ---------------------------------------------------------------------------

func TestCreditGate_MissingPrincipal(t *testing.T) {
	checker := &fakeChecker{eligibility: credits.Eligibility{Allowed: true}}
	handler := CreditGate(checker)(gate200)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
	if checker.calls != 0 {
		t.Fatal("eligibility checked without a principal")
	}
}

// ---------------------------------------------------------------------------
// 4. Checker failure -> 500
// ---------------------------------------------------------------------------

func TestCreditGate_CheckerError(t *testing.T) {
	checker := &fakeChecker{err: errors.New("database unreachable")}
	handler := injectPrincipal(
		&Principal{AccountID: uuid.New(), Role: models.RoleProvider},
		CreditGate(checker)(gate200),
	)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/localhive/backend/internal/credits"
)

// EligibilityChecker is the credit-gating check used before gated actions.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, ownerID uuid.UUID, role string) (credits.Eligibility, error)
}

// CreditGate rejects gated requests from accounts with no way to pay for the
// action. The check here is advisory (a fast 402 before any work); the
// authoritative re-check happens under the account row lock when the handler
// calls ConsumeCredit.
func CreditGate(checker EligibilityChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromCtx(r.Context())
			if p == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			el, err := checker.CheckEligibility(r.Context(), p.AccountID, p.Role)
			if err != nil {
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			if !el.Allowed {
				http.Error(w, `{"error":"no_credits"}`, http.StatusPaymentRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package router

import (
	"net/http"

	"github.com/localhive/backend/internal/auth"
	"github.com/localhive/backend/internal/credits"
)

// New returns an http.Handler that serves the account-facing API under /api/v1.
func New(authHandler *auth.Handler, creditsHandler *credits.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)
	mux.HandleFunc(base+"/me/payout-destination", methodPOST(authHandler.SetPayoutDestination))

	mux.HandleFunc(base+"/credits/eligibility", methodGET(creditsHandler.GetEligibility))
	mux.HandleFunc(base+"/credits/ledger", methodGET(creditsHandler.ListLedger))
	mux.HandleFunc(base+"/credits/packages", methodGET(creditsHandler.ListPackages))
	mux.HandleFunc(base+"/credits/purchase", methodPOST(creditsHandler.Purchase))
	mux.HandleFunc(base+"/credits/grant", methodPOST(creditsHandler.Grant))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

package credits

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/localhive/backend/internal/auth"
	"github.com/localhive/backend/internal/models"
)

// Handler serves the /api/v1/credits endpoints. It resolves the caller from
// the bearer token directly, like the account endpoints.
type Handler struct {
	authSvc auth.Service
	svc     *Service
	repo    *Repository
	log     *slog.Logger
}

func NewHandler(authSvc auth.Service, svc *Service, repo *Repository, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{authSvc: authSvc, svc: svc, repo: repo, log: log}
}

func (h *Handler) principalFromRequest(r *http.Request) (uuid.UUID, string, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, "", fmt.Errorf("missing authorization")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, "", fmt.Errorf("empty token")
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/credits/eligibility
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	accountID, role, err := h.principalFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	el, err := h.svc.CheckEligibility(r.Context(), accountID, role)
	if err != nil {
		h.log.Error("check eligibility", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

// GET /api/v1/credits/ledger
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	accountID, role, err := h.principalFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	acc, err := h.repo.GetOrCreate(r.Context(), accountID, role)
	if err != nil {
		h.log.Error("load credit account", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	entries, err := h.repo.ListEntries(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("list ledger", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": acc,
		"entries": entries,
	})
}

// GET /api/v1/credits/packages
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	_, role, err := h.principalFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	packages, err := h.repo.ListPackages(r.Context(), role)
	if err != nil {
		h.log.Error("list packages", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, packages)
}

// POST /api/v1/credits/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	accountID, role, err := h.principalFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		PackageID string `json:"package_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	packageID, err := uuid.Parse(req.PackageID)
	if err != nil {
		http.Error(w, "invalid package_id", http.StatusBadRequest)
		return
	}
	redirectURL, err := h.svc.PurchaseCredits(r.Context(), accountID, role, packageID)
	if err != nil {
		if errors.Is(err, ErrPackageUnavailable) {
			http.Error(w, "package unavailable", http.StatusUnprocessableEntity)
			return
		}
		h.log.Error("purchase credits", "package_id", packageID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect_url": redirectURL})
}

// POST /api/v1/credits/grant (admin adjustment)
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID     string `json:"owner_id"`
		Role        string `json:"role"`
		Amount      int    `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		http.Error(w, "invalid owner_id", http.StatusBadRequest)
		return
	}
	err = h.svc.GrantCredits(r.Context(), ownerID, req.Role, req.Amount, models.CreditActionAdminAdjust, "", req.Description)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			http.Error(w, "adjustment would take balance negative", http.StatusUnprocessableEntity)
			return
		}
		h.log.Error("grant credits", "owner_id", ownerID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

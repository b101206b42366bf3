package tasks

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/localhive/backend/internal/middleware"
	"github.com/localhive/backend/internal/models"
	"github.com/localhive/backend/internal/payments"
)

// Handler serves the /v1/tasks endpoints.
type Handler struct {
	Svc    *Service
	Logger *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- POST /v1/tasks ---

type createTaskRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	InsuranceCents int64  `json:"insurance_cents"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if p.Role != models.RoleRequester {
		http.Error(w, `{"error":"only requesters create tasks"}`, http.StatusForbidden)
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, `{"error":"title is required"}`, http.StatusBadRequest)
		return
	}
	if req.InsuranceCents < 0 {
		http.Error(w, `{"error":"insurance_cents must be >= 0"}`, http.StatusBadRequest)
		return
	}
	task, err := h.Svc.CreateTask(r.Context(), p.AccountID, req.Title, req.Description, req.InsuranceCents)
	if err != nil {
		h.Logger.Error("create task", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// --- GET /v1/tasks and GET /v1/tasks/{id} ---

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	task, err := h.Svc.GetTask(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.Svc.ListByRequester(r.Context(), p.AccountID)
	if err != nil {
		h.Logger.Error("list tasks", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- POST /v1/tasks/{id}/offers ---

type submitOfferRequest struct {
	PriceCents int64  `json:"price_cents"`
	Message    string `json:"message"`
}

func (h *Handler) SubmitOffer(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if p.Role != models.RoleProvider {
		http.Error(w, `{"error":"only providers submit offers"}`, http.StatusForbidden)
		return
	}
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	var req submitOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.PriceCents <= 0 {
		http.Error(w, `{"error":"price_cents must be > 0"}`, http.StatusBadRequest)
		return
	}
	offer, err := h.Svc.SubmitOffer(r.Context(), taskID, p.AccountID, req.PriceCents, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoCredits):
			http.Error(w, `{"error":"no_credits"}`, http.StatusPaymentRequired)
		case errors.Is(err, ErrTaskNotOpen):
			http.Error(w, `{"error":"task is not open"}`, http.StatusConflict)
		default:
			h.Logger.Error("submit offer", "task_id", taskID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// --- POST /v1/tasks/{id}/offers/{offerID}/accept ---

type acceptOfferResponse struct {
	RedirectURL string `json:"redirect_url"`
}

func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	offerID, err := uuid.Parse(r.PathValue("offerID"))
	if err != nil {
		http.Error(w, `{"error":"invalid offer id"}`, http.StatusBadRequest)
		return
	}
	redirectURL, err := h.Svc.AcceptOffer(r.Context(), taskID, offerID, p.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotTaskOwner):
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		case errors.Is(err, ErrOfferMismatch), errors.Is(err, ErrTaskNotOpen):
			http.Error(w, `{"error":"offer cannot be accepted"}`, http.StatusConflict)
		case errors.Is(err, payments.ErrProcessorUnavailable):
			http.Error(w, `{"error":"payment processor unavailable, retry later"}`, http.StatusServiceUnavailable)
		default:
			h.Logger.Error("accept offer", "task_id", taskID, "offer_id", offerID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, acceptOfferResponse{RedirectURL: redirectURL})
}

// --- POST /v1/tasks/{id}/complete ---

func (h *Handler) ConfirmCompletion(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	payout, err := h.Svc.ConfirmCompletion(r.Context(), taskID, p.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotTaskOwner):
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		case errors.Is(err, payments.ErrNotCaptured):
			http.Error(w, `{"error":"payment is not captured"}`, http.StatusConflict)
		case errors.Is(err, payments.ErrDestinationInvalid):
			http.Error(w, `{"error":"provider payout destination missing or inactive"}`, http.StatusUnprocessableEntity)
		case errors.Is(err, payments.ErrProcessorUnavailable):
			http.Error(w, `{"error":"payment processor unavailable, retry later"}`, http.StatusServiceUnavailable)
		default:
			h.Logger.Error("confirm completion", "task_id", taskID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

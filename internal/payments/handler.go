package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/localhive/backend/internal/middleware"
)

// PurchaseConfirmer is the credits-side webhook consumer for checkout
// sessions that bought credit packages rather than escrow payments.
type PurchaseConfirmer interface {
	ConfirmPurchase(ctx context.Context, sessionRef string) error
}

// Handler receives processor confirmations. The processor may deliver
// the same event more than once or out of order relative to a polling client;
// both capture and purchase confirmation are idempotent.
type Handler struct {
	Gateway   *Gateway
	Purchases PurchaseConfirmer
	Logger    *slog.Logger
}

type webhookEvent struct {
	Type      string            `json:"type"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata"`
}

// POST /v1/payments/webhook
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var ev webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if ev.Type != "checkout.completed" || ev.Reference == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var err error
	if ev.Metadata["kind"] == "credit_purchase" {
		err = h.Purchases.ConfirmPurchase(r.Context(), ev.Reference)
	} else {
		err = h.Gateway.ConfirmCapture(r.Context(), ev.Reference)
	}
	if err != nil {
		if errors.Is(err, ErrProcessorUnavailable) {
			// 5xx makes the processor redeliver later.
			http.Error(w, `{"error":"retry later"}`, http.StatusServiceUnavailable)
			return
		}
		h.Logger.Error("webhook processing", "reference", ev.Reference, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GET /v1/payouts
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	payouts, err := h.Gateway.PayoutsForProvider(r.Context(), p.AccountID)
	if err != nil {
		h.Logger.Error("list payouts", "provider_id", p.AccountID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payouts)
}

// POST /v1/payments/{id}/refund (operator action)
func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid payment id"}`, http.StatusBadRequest)
		return
	}
	var req struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Gateway.Refund(r.Context(), paymentID, req.AmountCents); err != nil {
		switch {
		case errors.Is(err, ErrInvalidTransition):
			http.Error(w, `{"error":"refund not allowed in current state"}`, http.StatusConflict)
		case errors.Is(err, ErrProcessorUnavailable):
			http.Error(w, `{"error":"payment processor unavailable, retry later"}`, http.StatusServiceUnavailable)
		default:
			h.Logger.Error("refund", "payment_id", paymentID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

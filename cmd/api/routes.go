package main

import (
	"log/slog"
	"net/http"

	"github.com/localhive/backend/internal/auth"
	"github.com/localhive/backend/internal/credits"
	"github.com/localhive/backend/internal/middleware"
	"github.com/localhive/backend/internal/payments"
	"github.com/localhive/backend/internal/tasks"
)

// RegisterV1Routes adds the /v1/ workflow endpoints to the given mux.
// Middleware chain: BearerAuth -> (CreditGate on offer submission only) -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	authSvc auth.Service,
	creditsSvc *credits.Service,
	tasksHandler *tasks.Handler,
	paymentsHandler *payments.Handler,
	logger *slog.Logger,
) {
	authMW := middleware.BearerAuth(authSvc)
	gate := middleware.CreditGate(creditsSvc)

	mux.Handle("POST /v1/tasks", authMW(http.HandlerFunc(tasksHandler.CreateTask)))
	mux.Handle("GET /v1/tasks", authMW(http.HandlerFunc(tasksHandler.ListTasks)))
	mux.Handle("GET /v1/tasks/{id}", authMW(http.HandlerFunc(tasksHandler.GetTask)))

	// Offer submission is the credit-gated action: the gate pre-filters,
	// ConsumeCredit inside the handler is authoritative.
	mux.Handle("POST /v1/tasks/{id}/offers", authMW(gate(http.HandlerFunc(tasksHandler.SubmitOffer))))

	mux.Handle("POST /v1/tasks/{id}/offers/{offerID}/accept", authMW(http.HandlerFunc(tasksHandler.AcceptOffer)))
	mux.Handle("POST /v1/tasks/{id}/complete", authMW(http.HandlerFunc(tasksHandler.ConfirmCompletion)))

	mux.Handle("GET /v1/payouts", authMW(http.HandlerFunc(paymentsHandler.ListPayouts)))

	// Processor webhooks are authenticated by the processor, not by users.
	mux.HandleFunc("POST /v1/payments/webhook", paymentsHandler.HandleWebhook)
	mux.HandleFunc("POST /v1/payments/{id}/refund", paymentsHandler.HandleRefund)
}

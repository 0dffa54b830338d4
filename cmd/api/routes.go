package main

import (
	"log/slog"
	"net/http"

	"github.com/bookwell/backend/internal/middleware"
	"github.com/bookwell/backend/internal/webhooks"
)

// RegisterWebhookRoutes adds the gateway callbacks to the given mux. They sit
// outside /api/v1 and carry no bearer token.
// Middleware chain for Paystack: RequireSignature -> handler.
func RegisterWebhookRoutes(mux *http.ServeMux, h *webhooks.Handler, paystackSecret string, logger *slog.Logger) {
	signed := middleware.RequireSignature(webhooks.PaystackSignatureHeader, webhooks.PaystackVerifier(paystackSecret), logger)

	// POST /webhooks/paystack: Signature -> Paystack
	mux.Handle("POST /webhooks/paystack", signed(http.HandlerFunc(h.Paystack)))

	// POST /webhooks/omise: event is re-fetched by id
	mux.HandleFunc("POST /webhooks/omise", h.OmiseEvent)
}

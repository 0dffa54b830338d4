// Package handlers adapts the booking, dispute and payout services to HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/lifecycle"
	"github.com/bookwell/backend/internal/models"
)

// BookingService is the subset of the booking state machine served over HTTP.
type BookingService interface {
	Create(ctx context.Context, actor models.Actor, req bookings.CreateRequest) (*models.Booking, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, actor models.Actor) ([]*models.Booking, error)
	Apply(ctx context.Context, actor models.Actor, id uuid.UUID, action lifecycle.Action) (*bookings.Result, error)
	ConfirmPayment(ctx context.Context, actor models.Actor, id uuid.UUID, reference string) (*bookings.Result, error)
	Review(ctx context.Context, actor models.Actor, id uuid.UUID) error
}

type DisputeRaiser interface {
	Raise(ctx context.Context, actor models.Actor, bookingID uuid.UUID, reason string) (*models.Dispute, error)
}

type EscrowReader interface {
	EscrowBalance(ctx context.Context, clientID uuid.UUID) (int64, error)
}

// BookingHandler serves /api/v1/bookings endpoints.
type BookingHandler struct {
	Bookings BookingService
	Disputes DisputeRaiser
	Escrow   EscrowReader
	Logger   *slog.Logger
}

// --- POST /api/v1/bookings ---

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req bookings.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ProviderID == uuid.Nil {
		http.Error(w, `{"error":"provider_id is required"}`, http.StatusBadRequest)
		return
	}
	b, err := h.Bookings.Create(r.Context(), a, req)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, b)
}

// --- GET /api/v1/bookings ---

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := h.Bookings.List(r.Context(), a)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	if list == nil {
		list = []*models.Booking{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// --- GET /api/v1/bookings/{id} ---

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.Get(r.Context(), a, id)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, b)
}

// --- POST /api/v1/bookings/{id}/{action} ---

// ApplyAction performs a user transition. The settlement outcome, when one
// ran, is part of the 200 body; a payout problem never fails the request.
func (h *BookingHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	action, ok := lifecycle.UserAction(r.PathValue("action"))
	if !ok {
		http.Error(w, `{"error":"unknown action"}`, http.StatusNotFound)
		return
	}
	res, err := h.Bookings.Apply(r.Context(), a, id, action)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// --- POST /api/v1/bookings/{id}/payment/verify ---

type verifyPaymentRequest struct {
	Reference string `json:"reference"`
}

func (h *BookingHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reference == "" {
		http.Error(w, `{"error":"reference is required"}`, http.StatusBadRequest)
		return
	}
	res, err := h.Bookings.ConfirmPayment(r.Context(), a, id, req.Reference)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// --- POST /api/v1/bookings/{id}/review ---

func (h *BookingHandler) Review(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Bookings.Review(r.Context(), a, id); err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- POST /api/v1/bookings/{id}/disputes ---

type raiseDisputeRequest struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	var req raiseDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	d, err := h.Disputes.Raise(r.Context(), a, id, req.Reason)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, d)
}

// --- GET /api/v1/escrow ---

func (h *BookingHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	bal, err := h.Escrow.EscrowBalance(r.Context(), a.ID)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"client_id": a.ID, "escrow_balance": bal})
}

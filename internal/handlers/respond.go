package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/disputes"
	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/ledger"
	"github.com/bookwell/backend/internal/lifecycle"
	"github.com/bookwell/backend/internal/middleware"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/payouts"
	"github.com/bookwell/backend/internal/repository"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps domain errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without detail.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		WriteJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bookings.ErrNotFound),
		errors.Is(err, bookings.ErrProviderNotFound),
		errors.Is(err, disputes.ErrNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bookings.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, bookings.ErrStale),
		errors.Is(err, bookings.ErrDuplicateBooking),
		errors.Is(err, bookings.ErrProviderBusy),
		errors.Is(err, bookings.ErrNotSettleable),
		errors.Is(err, disputes.ErrDisputeExists),
		errors.Is(err, disputes.ErrAlreadyResolved),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, bookings.ErrInvalidAmount),
		errors.Is(err, bookings.ErrSelfBooking),
		errors.Is(err, disputes.ErrReasonRequired),
		errors.Is(err, disputes.ErrBadResolution),
		errors.Is(err, payouts.ErrMissingBankDetails),
		errors.Is(err, ledger.ErrInvalidRate):
		return http.StatusBadRequest
	case errors.Is(err, bookings.ErrIdentityRequired),
		errors.Is(err, bookings.ErrProviderNotVerified),
		errors.Is(err, bookings.ErrNoRecipient),
		errors.Is(err, bookings.ErrDisputeWindowClosed),
		errors.Is(err, bookings.ErrNotReviewable),
		errors.Is(err, bookings.ErrPaymentNotVerified),
		errors.Is(err, bookings.ErrPaymentMismatch),
		errors.Is(err, payouts.ErrAccountNotResolved):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gateway.ErrUnsupported):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// actor returns the authenticated caller or writes 401.
func actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	a, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}
	return a, ok
}

// PathID parses the {name} path value as a uuid or writes 400.
func PathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		http.Error(w, `{"error":"invalid `+name+`"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// Package dashboard serves the account and admin endpoints.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/handlers"
	"github.com/bookwell/backend/internal/ledger"
	"github.com/bookwell/backend/internal/middleware"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/repository"
)

type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	SetIdentityVerified(ctx context.Context, id uuid.UUID, verified bool) error
}

type SettingsStore interface {
	Get(ctx context.Context) (models.AdminSettings, error)
	Update(ctx context.Context, s *models.AdminSettings) error
}

type DisputeService interface {
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
	Resolve(ctx context.Context, admin models.Actor, disputeID uuid.UUID, resolution models.DisputeResolution) (*models.Dispute, *bookings.Result, error)
}

type PayoutRetrier interface {
	RetryPayout(ctx context.Context, id uuid.UUID) (*bookings.Result, error)
}

type PayoutVerifier interface {
	Verify(ctx context.Context, bookingID uuid.UUID) (*models.Payout, error)
}

type Handler struct {
	accounts AccountStore
	settings SettingsStore
	disputes DisputeService
	retrier  PayoutRetrier
	verifier PayoutVerifier
	log      *slog.Logger
}

func NewHandler(
	accounts AccountStore,
	settings SettingsStore,
	disputes DisputeService,
	retrier PayoutRetrier,
	verifier PayoutVerifier,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		accounts: accounts,
		settings: settings,
		disputes: disputes,
		retrier:  retrier,
		verifier: verifier,
		log:      log,
	}
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	acc, err := h.accounts.GetByID(r.Context(), actor.ID)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, acc)
}

// GET /api/v1/admin/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.settings.Get(r.Context())
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, st)
}

type updateSettingsRequest struct {
	CommissionRate          *decimal.Decimal `json:"commission_rate"`
	AutoReleaseTimeoutHours *int             `json:"auto_release_timeout_hours"`
	PayoutsPaused           *bool            `json:"payouts_paused"`
	DisputeWindowHours      *int             `json:"dispute_window_hours"`
	ProximityRadiusKm       *float64         `json:"proximity_radius_km"`
	VerificationFee         *int64           `json:"verification_fee"`
}

// PATCH /api/v1/admin/settings
// Omitted fields keep their current value. The commission rate only affects
// bookings created afterwards.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	st, err := h.settings.Get(r.Context())
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if req.CommissionRate != nil {
		if err := ledger.ValidateRate(*req.CommissionRate); err != nil {
			handlers.WriteError(w, h.log, err)
			return
		}
		st.CommissionRate = *req.CommissionRate
	}
	if req.AutoReleaseTimeoutHours != nil {
		if *req.AutoReleaseTimeoutHours < 1 {
			http.Error(w, `{"error":"auto_release_timeout_hours must be at least 1"}`, http.StatusBadRequest)
			return
		}
		st.AutoReleaseTimeoutHours = *req.AutoReleaseTimeoutHours
	}
	if req.DisputeWindowHours != nil {
		if *req.DisputeWindowHours < 0 {
			http.Error(w, `{"error":"dispute_window_hours must not be negative"}`, http.StatusBadRequest)
			return
		}
		st.DisputeWindowHours = *req.DisputeWindowHours
	}
	if req.ProximityRadiusKm != nil {
		if *req.ProximityRadiusKm <= 0 {
			http.Error(w, `{"error":"proximity_radius_km must be positive"}`, http.StatusBadRequest)
			return
		}
		st.ProximityRadiusKm = *req.ProximityRadiusKm
	}
	if req.VerificationFee != nil {
		if *req.VerificationFee < 0 {
			http.Error(w, `{"error":"verification_fee must not be negative"}`, http.StatusBadRequest)
			return
		}
		st.VerificationFee = *req.VerificationFee
	}
	if req.PayoutsPaused != nil {
		st.PayoutsPaused = *req.PayoutsPaused
	}
	if err := h.settings.Update(r.Context(), &st); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	h.log.Info("admin settings updated", "commission_rate", st.CommissionRate.String(), "payouts_paused", st.PayoutsPaused)
	handlers.WriteJSON(w, http.StatusOK, st)
}

// GET /api/v1/admin/disputes
func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	list, err := h.disputes.ListOpen(r.Context())
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Dispute{}
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

type resolveRequest struct {
	Resolution models.DisputeResolution `json:"resolution"`
}

// POST /api/v1/admin/disputes/{id}/resolve
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := handlers.PathID(w, r, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	d, res, err := h.disputes.Resolve(r.Context(), actor, id, req.Resolution)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"dispute": d, "result": res})
}

// POST /api/v1/admin/payouts/{bookingId}/retry
func (h *Handler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	res, err := h.retrier.RetryPayout(r.Context(), id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, res)
}

// POST /api/v1/admin/payouts/{bookingId}/verify
func (h *Handler) VerifyPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := handlers.PathID(w, r, "bookingId")
	if !ok {
		return
	}
	p, err := h.verifier.Verify(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, `{"error":"no payout for booking"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, p)
}

// POST /api/v1/admin/users/{id}/verify-identity
func (h *Handler) VerifyIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := handlers.PathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.accounts.SetIdentityVerified(r.Context(), id, true); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	acc, err := h.accounts.GetByID(r.Context(), id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	h.log.Info("identity verified", "account_id", id)
	handlers.WriteJSON(w, http.StatusOK, acc)
}

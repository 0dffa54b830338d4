package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/payouts"
	"github.com/bookwell/backend/internal/repository"
)

type RecipientService interface {
	Get(ctx context.Context, providerID uuid.UUID) (*models.TransferRecipient, time.Duration, error)
	Bind(ctx context.Context, providerID uuid.UUID, req payouts.BindRequest) (*models.TransferRecipient, error)
}

type BankDirectory interface {
	ListBanks(ctx context.Context) ([]gateway.Bank, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error)
}

// PayoutHandler serves bank lookup and payout-account endpoints.
type PayoutHandler struct {
	Recipients RecipientService
	Banks      BankDirectory
	Logger     *slog.Logger
}

type payoutAccountResponse struct {
	*models.TransferRecipient
	CooldownRemainingSeconds int64 `json:"cooldown_remaining_seconds"`
}

// --- GET /api/v1/banks ---

func (h *PayoutHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.Banks.ListBanks(r.Context())
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, banks)
}

// --- GET /api/v1/banks/resolve?account_number=&bank_code= ---

func (h *PayoutHandler) ResolveAccount(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("account_number")
	code := r.URL.Query().Get("bank_code")
	if number == "" || code == "" {
		http.Error(w, `{"error":"account_number and bank_code are required"}`, http.StatusBadRequest)
		return
	}
	acct, err := h.Banks.ResolveAccount(r.Context(), number, code)
	if err != nil {
		if errors.Is(err, gateway.ErrUnsupported) {
			WriteError(w, h.Logger, err)
			return
		}
		h.Logger.Warn("resolve account", "bank_code", code, "error", err)
		WriteError(w, h.Logger, payouts.ErrAccountNotResolved)
		return
	}
	WriteJSON(w, http.StatusOK, acct)
}

// --- GET /api/v1/payout-account ---

func (h *PayoutHandler) GetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	rcpt, remaining, err := h.Recipients.Get(r.Context(), a.ID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, `{"error":"no payout account"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, payoutAccountResponse{TransferRecipient: rcpt, CooldownRemainingSeconds: int64(remaining.Seconds())})
}

// --- PUT /api/v1/payout-account ---

func (h *PayoutHandler) PutPayoutAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req payouts.BindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	rcpt, err := h.Recipients.Bind(r.Context(), a.ID, req)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	remaining := payouts.CooldownRemaining(rcpt, time.Now())
	WriteJSON(w, http.StatusOK, payoutAccountResponse{TransferRecipient: rcpt, CooldownRemainingSeconds: int64(remaining.Seconds())})
}

package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/repository"
)

var (
	ErrAccountNotResolved = errors.New("bank account could not be verified")
	ErrMissingBankDetails = errors.New("account_number and bank_code are required")
)

type BindRequest struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
}

// Recipients manages a provider's bound payout destination.
type Recipients struct {
	Store   RecipientStore
	Gateway gateway.Gateway
	Now     func() time.Time
}

func NewRecipients(store RecipientStore, gw gateway.Gateway) *Recipients {
	return &Recipients{Store: store, Gateway: gw, Now: time.Now}
}

// Get returns the provider's recipient and its remaining cooldown.
func (r *Recipients) Get(ctx context.Context, providerID uuid.UUID) (*models.TransferRecipient, time.Duration, error) {
	rcpt, err := r.Store.GetByProviderID(ctx, providerID)
	if err != nil {
		return nil, 0, err
	}
	return rcpt, CooldownRemaining(rcpt, r.Now()), nil
}

// Bind resolves the account, registers it with the gateway and stores it as
// the provider's recipient. Creating the first binding leaves LastChangedAt
// nil. The first change after that records a far-past sentinel and every
// later change records now, which starts the payout cooldown. Resubmitting
// the bound account is a no-op.
func (r *Recipients) Bind(ctx context.Context, providerID uuid.UUID, req BindRequest) (*models.TransferRecipient, error) {
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	req.BankCode = strings.TrimSpace(req.BankCode)
	if req.AccountNumber == "" || req.BankCode == "" {
		return nil, ErrMissingBankDetails
	}

	existing, err := r.Store.GetByProviderID(ctx, providerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.AccountNumber == req.AccountNumber && existing.BankCode == req.BankCode {
		return existing, nil
	}

	name := strings.TrimSpace(req.AccountName)
	resolved, err := r.Gateway.ResolveAccount(ctx, req.AccountNumber, req.BankCode)
	switch {
	case err == nil:
		name = resolved.AccountName
	case errors.Is(err, gateway.ErrUnsupported):
		if name == "" {
			return nil, fmt.Errorf("%w: account_name is required", ErrAccountNotResolved)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrAccountNotResolved, err)
	}

	bankName := req.BankName
	if bankName == "" {
		bankName = r.bankName(ctx, req.BankCode)
	}

	code, err := r.Gateway.CreateRecipient(ctx, gateway.RecipientDetails{
		Name:          name,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
	})
	if err != nil {
		return nil, fmt.Errorf("create transfer recipient: %w", err)
	}

	rcpt := &models.TransferRecipient{
		ProviderID:    providerID,
		RecipientCode: code,
		BankName:      bankName,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   name,
	}
	if existing != nil {
		changed := firstChangeSentinel
		if existing.LastChangedAt != nil {
			changed = r.Now().UTC()
		}
		rcpt.LastChangedAt = &changed
	}
	if err := r.Store.Upsert(ctx, rcpt); err != nil {
		return nil, err
	}
	return rcpt, nil
}

func (r *Recipients) bankName(ctx context.Context, code string) string {
	banks, err := r.Gateway.ListBanks(ctx)
	if err != nil {
		return code
	}
	for _, b := range banks {
		if b.Code == code {
			return b.Name
		}
	}
	return code
}

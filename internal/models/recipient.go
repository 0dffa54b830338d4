package models

import (
	"time"

	"github.com/google/uuid"
)

// TransferRecipient is a provider's bound payout destination.
// LastChangedAt == nil means the binding was never changed after setup.
type TransferRecipient struct {
	ProviderID    uuid.UUID  `json:"provider_id"`
	RecipientCode string     `json:"recipient_code"`
	BankName      string     `json:"bank_name"`
	BankCode      string     `json:"bank_code"`
	AccountNumber string     `json:"account_number"`
	AccountName   string     `json:"account_name"`
	LastChangedAt *time.Time `json:"last_changed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

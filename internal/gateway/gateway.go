// Package gateway adapts external payment providers to the transfer and
// charge operations the booking core needs.
package gateway

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by adapters for operations their provider lacks.
var ErrUnsupported = errors.New("operation not supported by payment provider")

type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type ResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type RecipientDetails struct {
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

type TransferRequest struct {
	RecipientCode string
	Amount        int64
	Reference     string
	Reason        string
}

// TransferResult separates a business rejection (Accepted=false, Message set)
// from a transport failure, which adapters return as an error.
type TransferResult struct {
	Accepted          bool
	ProviderReference string
	Message           string
}

type Transaction struct {
	Success  bool
	Amount   int64
	Metadata map[string]string
}

// Transfer outcome states reported by VerifyTransfer.
const (
	TransferPending  = "pending"
	TransferSuccess  = "success"
	TransferFailed   = "failed"
	TransferReversed = "reversed"
)

type TransferStatus struct {
	Status string
	Reason string
}

// Gateway is the contract every payment provider adapter satisfies. All
// calls go to a third party and may fail or time out.
type Gateway interface {
	ListBanks(ctx context.Context) ([]Bank, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error)
	CreateRecipient(ctx context.Context, d RecipientDetails) (string, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
	// VerifyTransfer reports a transfer's outcome. Adapters look it up by
	// whichever of our attempt reference or their own transfer id they key on.
	VerifyTransfer(ctx context.Context, reference, providerReference string) (*TransferStatus, error)
}

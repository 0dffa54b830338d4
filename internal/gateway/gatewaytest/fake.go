// Package gatewaytest provides an in-memory Gateway for tests.
package gatewaytest

import (
	"context"
	"errors"
	"sync"

	"github.com/bookwell/backend/internal/gateway"
)

// Fake accepts every transfer unless Result, Err or PanicMsg say otherwise.
type Fake struct {
	mu        sync.Mutex
	Transfers []gateway.TransferRequest
	Result    *gateway.TransferResult
	Err       error
	PanicMsg  string
	Tx        *gateway.Transaction
	Status    *gateway.TransferStatus
	Banks     []gateway.Bank
}

var _ gateway.Gateway = (*Fake)(nil)

func (g *Fake) ListBanks(context.Context) ([]gateway.Bank, error) { return g.Banks, nil }

func (g *Fake) ResolveAccount(_ context.Context, number, _ string) (*gateway.ResolvedAccount, error) {
	return &gateway.ResolvedAccount{AccountNumber: number, AccountName: "TEST ACCOUNT"}, nil
}

func (g *Fake) CreateRecipient(context.Context, gateway.RecipientDetails) (string, error) {
	return "RCP_test", nil
}

func (g *Fake) InitiateTransfer(_ context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.PanicMsg != "" {
		panic(g.PanicMsg)
	}
	g.Transfers = append(g.Transfers, req)
	if g.Err != nil {
		return nil, g.Err
	}
	if g.Result != nil {
		return g.Result, nil
	}
	return &gateway.TransferResult{Accepted: true, ProviderReference: "TRF_" + req.Reference}, nil
}

func (g *Fake) VerifyTransaction(context.Context, string) (*gateway.Transaction, error) {
	if g.Tx == nil {
		return nil, errors.New("transaction not found")
	}
	return g.Tx, nil
}

func (g *Fake) VerifyTransfer(context.Context, string, string) (*gateway.TransferStatus, error) {
	if g.Status == nil {
		return &gateway.TransferStatus{Status: gateway.TransferPending}, nil
	}
	return g.Status, nil
}

// Calls returns how many transfers were initiated.
func (g *Fake) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Transfers)
}

// Last returns the most recent transfer request.
func (g *Fake) Last() gateway.TransferRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Transfers) == 0 {
		return gateway.TransferRequest{}
	}
	return g.Transfers[len(g.Transfers)-1]
}

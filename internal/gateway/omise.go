package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Omise adapts omise-go. Omise has no bank directory or account name
// lookup, so ListBanks and ResolveAccount return ErrUnsupported.
type Omise struct {
	client *omise.Client
}

func NewOmise(publicKey, secretKey string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, err
	}
	c.SetDebug(false)
	return &Omise{client: c}, nil
}

var _ Gateway = (*Omise)(nil)

func (o *Omise) ListBanks(context.Context) ([]Bank, error) {
	return nil, ErrUnsupported
}

func (o *Omise) ResolveAccount(context.Context, string, string) (*ResolvedAccount, error) {
	return nil, ErrUnsupported
}

func (o *Omise) CreateRecipient(_ context.Context, d RecipientDetails) (string, error) {
	rcpt := &omise.Recipient{}
	err := o.client.Do(rcpt, &operations.CreateRecipient{
		Name: d.Name,
		Type: omise.Individual,
		BankAccount: &omise.BankAccount{
			Brand:  d.BankCode,
			Number: d.AccountNumber,
			Name:   d.Name,
		},
	})
	if err != nil {
		return "", err
	}
	return rcpt.ID, nil
}

// InitiateTransfer creates an Omise transfer. The transfer id becomes the
// provider reference used to match later webhook events.
func (o *Omise) InitiateTransfer(_ context.Context, req TransferRequest) (*TransferResult, error) {
	tr := &omise.Transfer{}
	err := o.client.Do(tr, &operations.CreateTransfer{
		Amount:    req.Amount,
		Recipient: req.RecipientCode,
		Metadata:  map[string]any{"reference": req.Reference},
	})
	var oe *omise.Error
	if errors.As(err, &oe) {
		return &TransferResult{Message: oe.Message}, nil
	}
	if err != nil {
		return nil, err
	}
	if tr.FailureMessage != nil && *tr.FailureMessage != "" {
		return &TransferResult{ProviderReference: tr.ID, Message: *tr.FailureMessage}, nil
	}
	return &TransferResult{Accepted: true, ProviderReference: tr.ID}, nil
}

// VerifyTransaction looks up a charge by id.
func (o *Omise) VerifyTransaction(_ context.Context, chargeID string) (*Transaction, error) {
	ch := &omise.Charge{}
	if err := o.client.Do(ch, &operations.RetrieveCharge{ChargeID: chargeID}); err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(ch.Metadata))
	for k, v := range ch.Metadata {
		meta[k] = fmt.Sprint(v)
	}
	return &Transaction{Success: ch.Status == "successful", Amount: ch.Amount, Metadata: meta}, nil
}

func (o *Omise) VerifyTransfer(_ context.Context, _, transferID string) (*TransferStatus, error) {
	if transferID == "" {
		return &TransferStatus{Status: TransferPending}, nil
	}
	tr := &omise.Transfer{}
	if err := o.client.Do(tr, &operations.RetrieveTransfer{TransferID: transferID}); err != nil {
		return nil, err
	}
	switch {
	case tr.Paid:
		return &TransferStatus{Status: TransferSuccess}, nil
	case tr.FailureCode != nil && *tr.FailureCode != "":
		reason := *tr.FailureCode
		if tr.FailureMessage != nil {
			reason = *tr.FailureMessage
		}
		return &TransferStatus{Status: TransferFailed, Reason: reason}, nil
	}
	return &TransferStatus{Status: TransferPending}, nil
}

// DecodeEvent re-fetches an Omise event by id so the payload is trusted
// without a shared secret.
func (o *Omise) DecodeEvent(_ context.Context, eventID string) (key string, data json.RawMessage, err error) {
	ev := &omise.Event{}
	if err := o.client.Do(ev, &operations.RetrieveEvent{EventID: eventID}); err != nil {
		return "", nil, err
	}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return "", nil, err
	}
	return ev.Key, raw, nil
}

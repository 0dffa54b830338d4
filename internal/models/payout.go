package models

import (
	"time"

	"github.com/google/uuid"
)

type PayoutStatus string

const (
	PayoutFailed     PayoutStatus = "FAILED"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutSuccess    PayoutStatus = "SUCCESS"
)

// Payout is the single disbursement record of a booking. A FAILED payout is
// reused by the next attempt; SUCCESS is final.
type Payout struct {
	ID                uuid.UUID    `json:"id"`
	BookingID         uuid.UUID    `json:"booking_id"`
	ProviderID        uuid.UUID    `json:"provider_id"`
	Amount            int64        `json:"amount"`
	Fee               int64        `json:"fee"`
	Status            PayoutStatus `json:"status"`
	TransferReference string       `json:"transfer_reference"`
	ProviderReference string       `json:"provider_reference,omitempty"`
	FailureReason     string       `json:"failure_reason,omitempty"`
	Attempts          int          `json:"attempts"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// InFlightOrDone reports whether the payout blocks a new disbursement attempt.
func (p *Payout) InFlightOrDone() bool {
	return p.Status == PayoutSuccess || p.Status == PayoutProcessing
}

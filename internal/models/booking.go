package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingCreated            BookingStatus = "CREATED"
	BookingAccepted           BookingStatus = "ACCEPTED"
	BookingDeclined           BookingStatus = "DECLINED"
	BookingPaid               BookingStatus = "PAID"
	BookingInProgress         BookingStatus = "IN_PROGRESS"
	BookingCompleted          BookingStatus = "COMPLETED"
	BookingCompletedConfirmed BookingStatus = "COMPLETED_CONFIRMED"
	BookingPayoutInitiated    BookingStatus = "PAYOUT_INITIATED"
	BookingPaidOut            BookingStatus = "PAID_OUT"
	BookingCancelled          BookingStatus = "CANCELLED"
	BookingDisputed           BookingStatus = "DISPUTED"
	BookingRefunded           BookingStatus = "REFUNDED"
)

// ActiveStatuses is the canonical "active engagement" set. A client may hold
// at most one booking with a given provider in these statuses.
var ActiveStatuses = []BookingStatus{
	BookingCreated,
	BookingAccepted,
	BookingPaid,
	BookingInProgress,
	BookingCompleted,
}

// EngagedStatuses are the statuses in which a provider is considered busy.
var EngagedStatuses = []BookingStatus{
	BookingAccepted,
	BookingPaid,
	BookingInProgress,
	BookingCompleted,
}

// EscrowStatuses hold client funds that have not been released long-term.
var EscrowStatuses = []BookingStatus{
	BookingPaid,
	BookingInProgress,
	BookingCompleted,
	BookingCompletedConfirmed,
	BookingPayoutInitiated,
}

// Booking amounts are in the currency's minor unit (kobo, cents).
type Booking struct {
	ID               uuid.UUID           `json:"id"`
	ClientID         uuid.UUID           `json:"client_id"`
	ProviderID       uuid.UUID           `json:"provider_id"`
	Status           BookingStatus       `json:"status"`
	Amount           int64               `json:"amount"`
	CommissionRate   decimal.NullDecimal `json:"commission_rate"`
	Notes            string              `json:"notes,omitempty"`
	ClientReviewed   bool                `json:"client_reviewed"`
	ProviderReviewed bool                `json:"provider_reviewed"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// IsParty reports whether userID is the client or the provider of b.
func (b *Booking) IsParty(userID uuid.UUID) bool {
	return b.ClientID == userID || b.ProviderID == userID
}

func ContainsStatus(list []BookingStatus, s BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "OPEN"
	DisputeResolved DisputeStatus = "RESOLVED"
)

type DisputeResolution string

const (
	ResolutionRefund  DisputeResolution = "REFUND"
	ResolutionRelease DisputeResolution = "RELEASE"
)

type Dispute struct {
	ID         uuid.UUID          `json:"id"`
	BookingID  uuid.UUID          `json:"booking_id"`
	RaisedBy   uuid.UUID          `json:"raised_by"`
	Reason     string             `json:"reason"`
	Status     DisputeStatus      `json:"status"`
	Resolution *DisputeResolution `json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

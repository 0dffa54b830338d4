package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles. RoleSystem is never issued in a token; it identifies the
// scheduler and the webhook reconciler when they drive a booking.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// SystemActorID is the actor id recorded for transitions not issued by a user.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type Account struct {
	ID                  uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	DisplayName         string    `json:"display_name"`
	PasswordHash        string    `json:"-"`
	Role                Role      `json:"role"`
	VerificationFeePaid bool      `json:"verification_fee_paid"`
	IdentityVerified    bool      `json:"identity_verified"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Actor is the authenticated caller of a state-machine operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor drives transitions issued by the scheduler and webhooks.
var SystemActor = Actor{ID: SystemActorID, Role: RoleSystem}

// Package lifecycle holds the booking transition table. Every status change
// in the system is looked up here before it is written.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/bookwell/backend/internal/models"
)

// ErrInvalidTransition is returned when an action is not permitted from the
// booking's current status.
var ErrInvalidTransition = errors.New("invalid booking transition")

type Action string

const (
	ActionAccept          Action = "accept"
	ActionDecline         Action = "decline"
	ActionCancel          Action = "cancel"
	ActionPay             Action = "pay"
	ActionStart           Action = "start"
	ActionComplete        Action = "complete"
	ActionConfirm         Action = "confirm"
	ActionAutoRelease     Action = "auto_release"
	ActionInitiatePayout  Action = "initiate_payout"
	ActionPayoutSucceeded Action = "payout_succeeded"
	ActionPayoutFailed    Action = "payout_failed"
	ActionDispute         Action = "dispute"
	ActionRefund          Action = "refund"
	ActionRelease         Action = "release"
)

// Guard names an extra precondition checked by the booking service before a
// transition is applied.
type Guard string

const (
	GuardProviderEligible Guard = "provider_eligible"
	GuardDisputeWindow    Guard = "dispute_window"
)

type Transition struct {
	From   models.BookingStatus
	Action Action
	To     models.BookingStatus
	Roles  []models.Role
	Guards []Guard
}

// Allows reports whether role may issue the transition.
func (t Transition) Allows(role models.Role) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type key struct {
	from   models.BookingStatus
	action Action
}

var (
	client   = []models.Role{models.RoleClient}
	provider = []models.Role{models.RoleProvider}
	parties  = []models.Role{models.RoleClient, models.RoleProvider}
	admin    = []models.Role{models.RoleAdmin}
	system   = []models.Role{models.RoleSystem}
)

var table = map[key]Transition{}

func init() {
	for _, t := range []Transition{
		{From: models.BookingCreated, Action: ActionAccept, To: models.BookingAccepted, Roles: provider, Guards: []Guard{GuardProviderEligible}},
		{From: models.BookingCreated, Action: ActionDecline, To: models.BookingDeclined, Roles: provider},
		{From: models.BookingCreated, Action: ActionCancel, To: models.BookingCancelled, Roles: client},
		{From: models.BookingAccepted, Action: ActionCancel, To: models.BookingCancelled, Roles: client},
		{From: models.BookingAccepted, Action: ActionPay, To: models.BookingPaid, Roles: system},
		{From: models.BookingPaid, Action: ActionStart, To: models.BookingInProgress, Roles: provider},
		{From: models.BookingInProgress, Action: ActionComplete, To: models.BookingCompleted, Roles: provider},
		{From: models.BookingInProgress, Action: ActionConfirm, To: models.BookingCompletedConfirmed, Roles: client},
		{From: models.BookingCompleted, Action: ActionConfirm, To: models.BookingCompletedConfirmed, Roles: client},
		{From: models.BookingCompleted, Action: ActionAutoRelease, To: models.BookingCompletedConfirmed, Roles: system},
		{From: models.BookingCompletedConfirmed, Action: ActionInitiatePayout, To: models.BookingPayoutInitiated, Roles: system},
		{From: models.BookingPayoutInitiated, Action: ActionPayoutSucceeded, To: models.BookingPaidOut, Roles: system},
		// A transfer webhook can land before the initiating request has moved
		// the booking to PAYOUT_INITIATED.
		{From: models.BookingCompletedConfirmed, Action: ActionPayoutSucceeded, To: models.BookingPaidOut, Roles: system},
		{From: models.BookingPayoutInitiated, Action: ActionPayoutFailed, To: models.BookingCompletedConfirmed, Roles: system},
		{From: models.BookingPaid, Action: ActionDispute, To: models.BookingDisputed, Roles: parties},
		{From: models.BookingInProgress, Action: ActionDispute, To: models.BookingDisputed, Roles: parties},
		{From: models.BookingCompleted, Action: ActionDispute, To: models.BookingDisputed, Roles: parties, Guards: []Guard{GuardDisputeWindow}},
		{From: models.BookingDisputed, Action: ActionRefund, To: models.BookingRefunded, Roles: admin},
		{From: models.BookingDisputed, Action: ActionRelease, To: models.BookingCompletedConfirmed, Roles: admin},
	} {
		table[key{t.From, t.Action}] = t
	}
}

// Lookup returns the transition for action from status.
func Lookup(from models.BookingStatus, action Action) (Transition, error) {
	t, ok := table[key{from, action}]
	if !ok {
		return Transition{}, fmt.Errorf("%w: cannot %s a booking in %s", ErrInvalidTransition, action, from)
	}
	return t, nil
}

// Actions lists what role may do to a booking in status from. Party
// membership is checked separately by the caller.
func Actions(from models.BookingStatus, role models.Role) []Action {
	var out []Action
	for k, t := range table {
		if k.from == from && t.Allows(role) {
			out = append(out, k.action)
		}
	}
	return out
}

// UserAction parses an action a client or provider may request over HTTP.
func UserAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionAccept, ActionDecline, ActionCancel, ActionStart, ActionComplete, ActionConfirm:
		return a, true
	}
	return "", false
}

// Terminal reports whether no further transition leaves s.
func Terminal(s models.BookingStatus) bool {
	for k := range table {
		if k.from == s {
			return false
		}
	}
	return true
}

package bookings

import "errors"

var (
	ErrNotFound            = errors.New("booking not found")
	ErrForbidden           = errors.New("not allowed to perform this action on the booking")
	ErrStale               = errors.New("booking changed while the action was applied, reload and retry")
	ErrInvalidAmount       = errors.New("amount must be a positive number of minor units")
	ErrSelfBooking         = errors.New("you cannot book yourself")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrDuplicateBooking    = errors.New("you already have an active booking with this provider")
	ErrIdentityRequired    = errors.New("verify your identity before making another booking")
	ErrProviderNotVerified = errors.New("pay the one-time verification fee before accepting bookings")
	ErrNoRecipient         = errors.New("add a payout bank account before accepting bookings")
	ErrProviderBusy        = errors.New("finish your current booking before accepting another")
	ErrDisputeWindowClosed = errors.New("the dispute window for this booking has closed")
	ErrPaymentNotVerified  = errors.New("payment could not be verified")
	ErrPaymentMismatch     = errors.New("payment does not match this booking")
	ErrNotReviewable       = errors.New("booking cannot be reviewed yet")
	ErrNotSettleable       = errors.New("booking is not awaiting payout")
)

// Package ledger computes settlement splits and reads escrow positions.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidRate   = errors.New("commission rate must be in [0,1) with at most 4 decimal places")
)

// RateScale is the number of decimal places a stored commission rate keeps.
const RateScale = 4

// Split is the result of settling one booking.
type Split struct {
	Fee    int64 `json:"fee"`
	Payout int64 `json:"payout"`
}

// Settle splits amount (minor units) into the platform fee and the provider
// payout. The fee is rounded half away from zero to a whole minor unit and
// the payout takes the remainder, so Fee+Payout always equals amount.
func Settle(amount int64, rate decimal.Decimal) (Split, error) {
	if amount <= 0 {
		return Split{}, ErrInvalidAmount
	}
	if err := ValidateRate(rate); err != nil {
		return Split{}, err
	}
	fee := decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
	return Split{Fee: fee, Payout: amount - fee}, nil
}

// ValidateRate checks that rate is a fraction in [0,1) that the database
// stores without rounding.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) || !rate.Equal(rate.Round(RateScale)) {
		return ErrInvalidRate
	}
	return nil
}

// RateFor returns the booking's snapshotted rate, or fallback when the
// booking predates rate snapshots.
func RateFor(snapshot decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if snapshot.Valid {
		return snapshot.Decimal
	}
	return fallback
}

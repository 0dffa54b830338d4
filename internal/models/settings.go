package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdminSettings is the platform-wide settings row. Services read one
// snapshot per operation.
type AdminSettings struct {
	CommissionRate          decimal.Decimal `json:"commission_rate"`
	AutoReleaseTimeoutHours int             `json:"auto_release_timeout_hours"`
	PayoutsPaused           bool            `json:"payouts_paused"`
	DisputeWindowHours      int             `json:"dispute_window_hours"`
	ProximityRadiusKm       float64         `json:"proximity_radius_km"`
	VerificationFee         int64           `json:"verification_fee"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// DefaultSettings mirrors the seed row in the schema.
func DefaultSettings() AdminSettings {
	return AdminSettings{
		CommissionRate:          decimal.RequireFromString("0.20"),
		AutoReleaseTimeoutHours: 24,
		DisputeWindowHours:      48,
		ProximityRadiusKm:       25,
		VerificationFee:         500000,
	}
}

func (s AdminSettings) AutoReleaseTimeout() time.Duration {
	return time.Duration(s.AutoReleaseTimeoutHours) * time.Hour
}

func (s AdminSettings) DisputeWindow() time.Duration {
	return time.Duration(s.DisputeWindowHours) * time.Hour
}

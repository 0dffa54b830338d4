package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/backend/internal/models"
)

// SettingsRepo reads and writes the single admin_settings row (id = 1).
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) Get(ctx context.Context) (models.AdminSettings, error) {
	var s models.AdminSettings
	err := r.pool.QueryRow(ctx, `
		SELECT commission_rate, auto_release_timeout_hours, payouts_paused, dispute_window_hours, proximity_radius_km, verification_fee, updated_at
		FROM admin_settings WHERE id = 1
	`).Scan(&s.CommissionRate, &s.AutoReleaseTimeoutHours, &s.PayoutsPaused, &s.DisputeWindowHours, &s.ProximityRadiusKm, &s.VerificationFee, &s.UpdatedAt)
	if err != nil {
		return models.AdminSettings{}, translate(err)
	}
	return s, nil
}

func (r *SettingsRepo) Update(ctx context.Context, s *models.AdminSettings) error {
	return r.pool.QueryRow(ctx, `
		UPDATE admin_settings
		SET commission_rate = $1, auto_release_timeout_hours = $2, payouts_paused = $3, dispute_window_hours = $4,
		    proximity_radius_km = $5, verification_fee = $6, updated_at = now()
		WHERE id = 1
		RETURNING updated_at
	`, s.CommissionRate, s.AutoReleaseTimeoutHours, s.PayoutsPaused, s.DisputeWindowHours, s.ProximityRadiusKm, s.VerificationFee).Scan(&s.UpdatedAt)
}

package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/backend/internal/models"
)

// PayoutRepo stores one payout row per booking. Every status write is a
// compare-and-set on the current status so the webhook and the initiating
// request can race on the same row without a lock.
type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

const payoutColumns = `id, booking_id, provider_id, amount, fee, status, transfer_reference, provider_reference, failure_reason, attempts, created_at, updated_at`

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.BookingID, &p.ProviderID, &p.Amount, &p.Fee, &p.Status, &p.TransferReference,
		&p.ProviderReference, &p.FailureReason, &p.Attempts, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PayoutRepo) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payout, error) {
	return scanPayout(r.pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE booking_id = $1`, bookingID))
}

// GetByReference matches either our attempt reference or the gateway's
// transfer code.
func (r *PayoutRepo) GetByReference(ctx context.Context, ref string) (*models.Payout, error) {
	return scanPayout(r.pool.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE transfer_reference = $1 OR (provider_reference <> '' AND provider_reference = $1)
	`, ref))
}

// Claim marks p PROCESSING under a new reference. It inserts the row if the
// booking has none and otherwise only takes over a FAILED row. It reports
// false when another attempt is in flight or has succeeded.
func (r *PayoutRepo) Claim(ctx context.Context, p *models.Payout) (bool, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payouts (id, booking_id, provider_id, amount, fee, status, transfer_reference, attempts)
		VALUES ($1, $2, $3, $4, $5, 'PROCESSING', $6, 1)
		ON CONFLICT (booking_id) DO UPDATE
		SET amount = EXCLUDED.amount, fee = EXCLUDED.fee, status = 'PROCESSING',
		    transfer_reference = EXCLUDED.transfer_reference, provider_reference = '',
		    failure_reason = '', attempts = payouts.attempts + 1, updated_at = now()
		WHERE payouts.status = 'FAILED'
		RETURNING `+payoutColumns,
		p.ID, p.BookingID, p.ProviderID, p.Amount, p.Fee, p.TransferReference,
	).Scan(&p.ID, &p.BookingID, &p.ProviderID, &p.Amount, &p.Fee, &p.Status, &p.TransferReference,
		&p.ProviderReference, &p.FailureReason, &p.Attempts, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	return true, nil
}

// RecordFailure writes a FAILED payout for an attempt that never reached the
// gateway. An in-flight or successful row is left untouched.
func (r *PayoutRepo) RecordFailure(ctx context.Context, p *models.Payout) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payouts (id, booking_id, provider_id, amount, fee, status, transfer_reference, failure_reason, attempts)
		VALUES ($1, $2, $3, $4, $5, 'FAILED', $6, $7, 1)
		ON CONFLICT (booking_id) DO UPDATE
		SET status = 'FAILED', transfer_reference = EXCLUDED.transfer_reference,
		    failure_reason = EXCLUDED.failure_reason, attempts = payouts.attempts + 1, updated_at = now()
		WHERE payouts.status = 'FAILED'
	`, p.ID, p.BookingID, p.ProviderID, p.Amount, p.Fee, p.TransferReference, p.FailureReason)
	return translate(err)
}

// MarkAccepted records the gateway's transfer code. It reports whether the
// payout is still PROCESSING, which is false when a webhook already settled it.
func (r *PayoutRepo) MarkAccepted(ctx context.Context, id uuid.UUID, providerRef string) (bool, error) {
	var status models.PayoutStatus
	err := r.pool.QueryRow(ctx, `
		UPDATE payouts SET provider_reference = $2, updated_at = now()
		WHERE id = $1 AND status <> 'SUCCESS'
		RETURNING status
	`, id, providerRef).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == models.PayoutProcessing, nil
}

// MarkFailed fails the attempt identified by ref if it is still PROCESSING.
func (r *PayoutRepo) MarkFailed(ctx context.Context, id uuid.UUID, ref, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payouts SET status = 'FAILED', failure_reason = $3, updated_at = now()
		WHERE id = $1 AND transfer_reference = $2 AND status = 'PROCESSING'
	`, id, ref, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSucceeded settles the attempt identified by ref. Success overrides a
// failure reported for the same attempt.
func (r *PayoutRepo) MarkSucceeded(ctx context.Context, id uuid.UUID, ref string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payouts SET status = 'SUCCESS', failure_reason = '', updated_at = now()
		WHERE id = $1 AND transfer_reference = $2 AND status <> 'SUCCESS'
	`, id, ref)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

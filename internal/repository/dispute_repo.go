package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/backend/internal/models"
)

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeColumns = `id, booking_id, raised_by, reason, status, resolution, resolved_by, resolved_at, created_at`

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	if err := row.Scan(&d.ID, &d.BookingID, &d.RaisedBy, &d.Reason, &d.Status, &d.Resolution, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

// Create inserts d. A second dispute for the same booking returns ErrConflict.
func (r *DisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO disputes (id, booking_id, raised_by, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, d.ID, d.BookingID, d.RaisedBy, d.Reason, d.Status).Scan(&d.CreatedAt)
	return translate(err)
}

func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

func (r *DisputeRepo) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE booking_id = $1`, bookingID))
}

// Resolve closes an OPEN dispute. It returns ErrConflict if it was already resolved.
func (r *DisputeRepo) Resolve(ctx context.Context, id uuid.UUID, resolution models.DisputeResolution, by uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE disputes SET status = 'RESOLVED', resolution = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = 'OPEN'
	`, id, resolution, by, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// Delete removes an OPEN dispute. Resolved disputes are kept.
func (r *DisputeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM disputes WHERE id = $1 AND status = 'OPEN'`, id)
	return err
}

func (r *DisputeRepo) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE status = 'OPEN' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/backend/internal/models"
)

type BookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepo {
	return &BookingRepo{pool: pool}
}

const bookingColumns = `id, client_id, provider_id, status, amount, commission_rate, notes, client_reviewed, provider_reviewed, started_at, completed_at, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.ClientID, &b.ProviderID, &b.Status, &b.Amount, &b.CommissionRate, &b.Notes,
		&b.ClientReviewed, &b.ProviderReviewed, &b.StartedAt, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows, err error) ([]*models.Booking, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (r *BookingRepo) Create(ctx context.Context, b *models.Booking) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, client_id, provider_id, status, amount, commission_rate, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, b.ID, b.ClientID, b.ProviderID, b.Status, b.Amount, b.CommissionRate, b.Notes).Scan(&b.CreatedAt, &b.UpdatedAt)
	return translate(err)
}

func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

// UpdateStatus writes b's status and lifecycle timestamps only if the row is
// still in status from. A miss returns ErrConflict and leaves the row alone.
func (r *BookingRepo) UpdateStatus(ctx context.Context, b *models.Booking, from models.BookingStatus) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $3, started_at = $4, completed_at = $5, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`, b.ID, from, b.Status, b.StartedAt, b.CompletedAt).Scan(&b.UpdatedAt)
	if err = translate(err); errors.Is(err, ErrNotFound) {
		return ErrConflict
	}
	return err
}

// MarkReviewed sets client_reviewed or provider_reviewed depending on role.
func (r *BookingRepo) MarkReviewed(ctx context.Context, id uuid.UUID, role models.Role) error {
	column := "client_reviewed"
	if role == models.RoleProvider {
		column = "provider_reviewed"
	}
	tag, err := r.pool.Exec(ctx, `UPDATE bookings SET `+column+` = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BookingRepo) ExistsBetween(ctx context.Context, clientID, providerID uuid.UUID, statuses []models.BookingStatus) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM bookings WHERE client_id = $1 AND provider_id = $2 AND status = ANY($3))
	`, clientID, providerID, statusStrings(statuses)).Scan(&exists)
	return exists, err
}

// CountByProvider counts the provider's bookings in statuses, ignoring exclude.
func (r *BookingRepo) CountByProvider(ctx context.Context, providerID uuid.UUID, statuses []models.BookingStatus, exclude uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM bookings WHERE provider_id = $1 AND status = ANY($2) AND id <> $3
	`, providerID, statusStrings(statuses), exclude).Scan(&n)
	return n, err
}

func (r *BookingRepo) CountByClient(ctx context.Context, clientID uuid.UUID, statuses []models.BookingStatus) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM bookings WHERE client_id = $1 AND status = ANY($2)
	`, clientID, statusStrings(statuses)).Scan(&n)
	return n, err
}

func (r *BookingRepo) ListByParty(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	return collectBookings(r.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE client_id = $1 OR provider_id = $1
		ORDER BY created_at DESC
	`, userID))
}

// ListStale returns bookings in status last updated before cutoff.
func (r *BookingRepo) ListStale(ctx context.Context, status models.BookingStatus, cutoff time.Time) ([]*models.Booking, error) {
	return collectBookings(r.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
	`, status, cutoff))
}

// ListAwaitingPayout returns confirmed bookings with no payout, or with a
// failed payout, untouched since cutoff.
func (r *BookingRepo) ListAwaitingPayout(ctx context.Context, cutoff time.Time) ([]*models.Booking, error) {
	return collectBookings(r.pool.Query(ctx, `
		SELECT b.id, b.client_id, b.provider_id, b.status, b.amount, b.commission_rate, b.notes, b.client_reviewed,
		       b.provider_reviewed, b.started_at, b.completed_at, b.created_at, b.updated_at
		FROM bookings b
		LEFT JOIN payouts p ON p.booking_id = b.id
		WHERE b.status = 'COMPLETED_CONFIRMED'
		  AND ((p.id IS NULL AND b.updated_at < $1) OR (p.status = 'FAILED' AND p.updated_at < $1))
		ORDER BY b.updated_at
	`, cutoff))
}

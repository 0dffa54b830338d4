package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EscrowBalance sums the amounts of the client's bookings whose funds are
// held by the platform.
func (r *Repository) EscrowBalance(ctx context.Context, clientID uuid.UUID) (int64, error) {
	statuses := make([]string, len(models.EscrowStatuses))
	for i, s := range models.EscrowStatuses {
		statuses[i] = string(s)
	}
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM bookings
		WHERE client_id = $1 AND status = ANY($2)
	`, clientID, statuses).Scan(&total)
	return total, err
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, email, display_name, password_hash, role, verification_fee_paid, identity_verified, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Role, &a.VerificationFeePaid, &a.IdentityVerified, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.PasswordHash, a.Role).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translate(err)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (r *AccountRepo) MarkVerificationFeePaid(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET verification_fee_paid = true, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepo) SetIdentityVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET identity_verified = $2, updated_at = now() WHERE id = $1
	`, id, verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

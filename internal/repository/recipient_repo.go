package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/backend/internal/models"
)

type RecipientRepo struct {
	pool *pgxpool.Pool
}

func NewRecipientRepo(pool *pgxpool.Pool) *RecipientRepo {
	return &RecipientRepo{pool: pool}
}

func (r *RecipientRepo) GetByProviderID(ctx context.Context, providerID uuid.UUID) (*models.TransferRecipient, error) {
	var t models.TransferRecipient
	err := r.pool.QueryRow(ctx, `
		SELECT provider_id, recipient_code, bank_name, bank_code, account_number, account_name, last_changed_at, created_at, updated_at
		FROM transfer_recipients WHERE provider_id = $1
	`, providerID).Scan(&t.ProviderID, &t.RecipientCode, &t.BankName, &t.BankCode, &t.AccountNumber, &t.AccountName,
		&t.LastChangedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *RecipientRepo) Upsert(ctx context.Context, t *models.TransferRecipient) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO transfer_recipients (provider_id, recipient_code, bank_name, bank_code, account_number, account_name, last_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id) DO UPDATE
		SET recipient_code = EXCLUDED.recipient_code, bank_name = EXCLUDED.bank_name, bank_code = EXCLUDED.bank_code,
		    account_number = EXCLUDED.account_number, account_name = EXCLUDED.account_name,
		    last_changed_at = EXCLUDED.last_changed_at, updated_at = now()
		RETURNING created_at, updated_at
	`, t.ProviderID, t.RecipientCode, t.BankName, t.BankCode, t.AccountNumber, t.AccountName, t.LastChangedAt).Scan(&t.CreatedAt, &t.UpdatedAt)
}

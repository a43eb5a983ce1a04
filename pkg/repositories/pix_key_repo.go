package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

type PixKeyRepository interface {
	// Create inserts the key; false when the (type, value) pair is taken.
	Create(ctx context.Context, tx pgx.Tx, key models.PixKey) (bool, error)
	FindByAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) ([]models.PixKey, error)
}

type PixKeyRepositoryImpl struct {
}

func NewPixKeyRepository() PixKeyRepository {
	return &PixKeyRepositoryImpl{}
}

func (p PixKeyRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, key models.PixKey) (bool, error) {
	tag, err := tx.Exec(ctx, `INSERT INTO pix_keys (id, account_id, key_type, key_value, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key_type, key_value) DO NOTHING`,
		key.ID, key.AccountID, key.KeyType, key.KeyValue, key.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p PixKeyRepositoryImpl) FindByAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) ([]models.PixKey, error) {
	rows, err := tx.Query(ctx, `SELECT id, account_id, key_type, key_value, created_at FROM pix_keys WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]models.PixKey, 0)
	for rows.Next() {
		var key models.PixKey
		if err := rows.Scan(&key.ID, &key.AccountID, &key.KeyType, &key.KeyValue, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

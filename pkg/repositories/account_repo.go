package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, account_number, principal_id, provider_account_id, balance, created_at, updated_at`

// AccountRepository defines the interface for account repository.
type AccountRepository interface {
	// Create inserts the account; false when the number or principal is taken.
	Create(ctx context.Context, tx pgx.Tx, account models.Account) (bool, error)
	FindById(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (models.Account, error)
	FindByNumber(ctx context.Context, tx pgx.Tx, number string) (models.Account, error)
	FindByPrincipal(ctx context.Context, tx pgx.Tx, principalID string) (models.Account, error)
	// LockByNumbers takes row locks in account number order.
	LockByNumbers(ctx context.Context, tx pgx.Tx, numbers []string) ([]models.Account, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, balance decimal.Decimal, at time.Time) error
	UpdateProviderAccountID(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, providerAccountID string, at time.Time) error
}

type AccountRepositoryImpl struct {
}

func NewAccountRepository() AccountRepository {
	return &AccountRepositoryImpl{}
}

func (a AccountRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, account models.Account) (bool, error) {
	tag, err := tx.Exec(ctx, `INSERT INTO accounts (id, account_number, principal_id, provider_account_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`,
		account.ID, account.AccountNumber, account.PrincipalID, account.ProviderAccountID, account.Balance, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (a AccountRepositoryImpl) FindById(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (models.Account, error) {
	if accountID == uuid.Nil {
		return models.Account{}, fmt.Errorf("invalid account ID: %s", accountID.String())
	}
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
}

func (a AccountRepositoryImpl) FindByNumber(ctx context.Context, tx pgx.Tx, number string) (models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number))
}

func (a AccountRepositoryImpl) FindByPrincipal(ctx context.Context, tx pgx.Tx, principalID string) (models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE principal_id = $1`, principalID))
}

func (a AccountRepositoryImpl) LockByNumbers(ctx context.Context, tx pgx.Tx, numbers []string) ([]models.Account, error) {
	rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE account_number = ANY($1)
		ORDER BY account_number
		FOR UPDATE`, numbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]models.Account, 0, len(numbers))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (a AccountRepositoryImpl) UpdateBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, balance decimal.Decimal, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance, at, accountID)
	return err
}

func (a AccountRepositoryImpl) UpdateProviderAccountID(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, providerAccountID string, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE accounts SET provider_account_id = $1, updated_at = $2 WHERE id = $3`,
		providerAccountID, at, accountID)
	return err
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	err := row.Scan(&account.ID, &account.AccountNumber, &account.PrincipalID, &account.ProviderAccountID,
		&account.Balance, &account.CreatedAt, &account.UpdatedAt)
	return account, err
}

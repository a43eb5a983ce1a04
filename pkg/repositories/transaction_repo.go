package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/database"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

// Account numbers are joined in; the table itself only keeps account ids.
const transactionSelect = `SELECT t.id, t.sender_id, t.receiver_id, s.account_number, r.account_number,
		t.amount, t.transaction_type, t.timestamp, t.digest, t.description, t.device_id
	FROM transactions t
	JOIN accounts s ON s.id = t.sender_id
	JOIN accounts r ON r.id = t.receiver_id`

// TransactionRepository reads and appends ledger rows. There is no update or delete.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, record models.TransactionRecord) error
	ExistsByDigest(ctx context.Context, tx pgx.Tx, digest string) (bool, error)
	FindByDigest(ctx context.Context, tx pgx.Tx, digest string) (models.TransactionRecord, error)
	// Scan streams rows matching f from a reader, newest first.
	Scan(ctx context.Context, db *database.DB, f models.TransactionFilter, yield func(models.TransactionRecord) bool) error
}

type TransactionRepositoryImpl struct {
}

func NewTransactionRepository() TransactionRepository {
	return &TransactionRepositoryImpl{}
}

func (t TransactionRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, record models.TransactionRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, sender_id, receiver_id, amount, transaction_type, timestamp, digest, description, device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID,
		record.SenderID,
		record.ReceiverID,
		record.Amount,
		string(record.Type),
		record.Timestamp,
		record.Digest,
		record.Description,
		record.DeviceID,
	)
	return err
}

func (t TransactionRepositoryImpl) ExistsByDigest(ctx context.Context, tx pgx.Tx, digest string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE digest = $1)`, digest).Scan(&exists)
	return exists, err
}

func (t TransactionRepositoryImpl) FindByDigest(ctx context.Context, tx pgx.Tx, digest string) (models.TransactionRecord, error) {
	return scanTransaction(tx.QueryRow(ctx, transactionSelect+` WHERE t.digest = $1`, digest))
}

func (t TransactionRepositoryImpl) Scan(ctx context.Context, db *database.DB, f models.TransactionFilter, yield func(models.TransactionRecord) bool) error {
	where, args := transactionWhere(f)
	query := transactionSelect + where + ` ORDER BY t.timestamp DESC, t.id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	run := db.Query
	if f.Stale {
		run = db.QueryReplica
	}
	rows, err := run(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return err
		}
		if !yield(record) {
			return nil
		}
	}
	return rows.Err()
}

func transactionWhere(f models.TransactionFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		clauses = append(clauses, fmt.Sprintf("(t.sender_id = $%[1]d OR t.receiver_id = $%[1]d)", len(args)))
	}
	if f.DeviceID != nil {
		add("t.device_id = $%d", *f.DeviceID)
	}
	if f.From != nil {
		add("t.timestamp >= $%d", *f.From)
	}
	if f.To != nil {
		add("t.timestamp < $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTransaction(row pgx.Row) (models.TransactionRecord, error) {
	var (
		record models.TransactionRecord
		txType string
	)
	err := row.Scan(&record.ID, &record.SenderID, &record.ReceiverID, &record.SenderNumber, &record.ReceiverNumber,
		&record.Amount, &txType, &record.Timestamp, &record.Digest, &record.Description, &record.DeviceID)
	record.Type = pkg.TransactionType(txType)
	record.Timestamp = record.Timestamp.UTC()
	return record, err
}

// Package pgstore runs the ledger on Postgres through the shared pgx pools.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/database"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/repositories"
	"go.uber.org/zap"
)

const DefaultLockTimeout = 2 * time.Second

type Store struct {
	db          *database.DB
	logger      *zap.Logger
	lockTimeout time.Duration

	accounts     repositories.AccountRepository
	transactions repositories.TransactionRepository
	devices      repositories.DeviceRepository
	pixKeys      repositories.PixKeyRepository
}

var _ ledger.Store = (*Store)(nil)

// New wraps db. Row lock waits inside a unit are capped at lockTimeout.
func New(db *database.DB, logger *zap.Logger, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		db:           db,
		logger:       logger,
		lockTimeout:  lockTimeout,
		accounts:     repositories.NewAccountRepository(),
		transactions: repositories.NewTransactionRepository(),
		devices:      repositories.NewDeviceRepository(),
		pixKeys:      repositories.NewPixKeyRepository(),
	}
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	err := s.db.WithTransaction(ctx, func(ctx context.Context, pgTx pgx.Tx) error {
		if _, err := pgTx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
			return err
		}
		return fn(ctx, &tx{s: s, pg: pgTx})
	})
	return s.mapErr(ctx, err)
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	err := s.db.WithReadTransaction(ctx, func(ctx context.Context, pgTx pgx.Tx) error {
		return fn(ctx, &tx{s: s, pg: pgTx})
	})
	return s.mapErr(ctx, err)
}

func (s *Store) ScanTransactions(ctx context.Context, f models.TransactionFilter, yield func(models.TransactionRecord) bool) error {
	return s.mapErr(ctx, s.transactions.Scan(ctx, s.db, f, yield))
}

// mapErr turns raw driver errors into AppErrors. Errors that are already mapped pass through.
func (s *Store) mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var appErr pkg.AppError
	if errors.As(err, &appErr) || errors.Is(err, pkg.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, pgx.ErrNoRows) {
		return pkg.HandleSQLError(pkg.TraceIDFromContext(ctx), s.logger, err)
	}
	return err
}

package database

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"go.uber.org/zap"
)

// Config holds database connection details.
type Config struct {
	PrimaryDSN  string
	ReplicaDSNs []string // Optional; if empty, use primary for reads. Multiple for balancing.
	MaxConns    int32
	MinConns    int32
}

// DB provides read/write routing.
type DB struct {
	writer  *pgxpool.Pool
	readers []*pgxpool.Pool // Multiple for load balancing; fallback to writer if empty.
}

// New creates a DB with connection pools.
func New(ctx context.Context, logger *zap.Logger, cfg Config) (*DB, func(), error) {
	writer, err := newPool(ctx, logger, cfg.PrimaryDSN, cfg.MaxConns, cfg.MinConns)
	if err != nil {
		return nil, nil, err
	}

	readers := make([]*pgxpool.Pool, 0)
	for _, dsn := range cfg.ReplicaDSNs {
		if utils.IsEmpty(dsn) || dsn == cfg.PrimaryDSN {
			continue
		}
		reader, err := newPool(ctx, logger, dsn, cfg.MaxConns, cfg.MinConns)
		if err != nil {
			writer.Close()
			for _, r := range readers {
				r.Close()
			}
			return nil, nil, err
		}
		readers = append(readers, reader)
		logger.Info("postgres_replica_pool_established")
	}
	if len(readers) == 0 {
		readers = []*pgxpool.Pool{writer}
	}

	// Close all pools on exit.
	closer := func() {
		for _, reader := range readers {
			if reader != writer {
				reader.Close()
			}
		}
		writer.Close()
		logger.Info("postgres_connection_pools_closed")
	}
	return &DB{writer: writer, readers: readers}, closer, nil
}

func newPool(ctx context.Context, logger *zap.Logger, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	if !strings.HasPrefix(dsn, "postgres://") {
		dsn = fmt.Sprintf("postgres://%s", dsn)
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	if minConns > 0 {
		config.MinConns = minConns
	}
	config.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Debug("postgres_connection_pool_established", zap.String("dsn", maskDSN(dsn)))
	return pool, nil
}

// maskDSN hides sensitive parts like passwords.
func maskDSN(dsn string) string {
	parts := strings.SplitN(dsn, "@", 2)
	if len(parts) > 1 {
		auth := strings.SplitN(parts[0], "://", 2)
		if len(auth) > 1 && strings.Contains(auth[1], ":") {
			return auth[0] + "://*****:*****@" + parts[1]
		}
	}
	return dsn
}

// WithTransaction runs fn in a transaction on the primary; auto-commits if no error, rolls back otherwise. Recovers panics.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := db.writer.Begin(ctx)
	if err != nil {
		return err
	}
	return finish(ctx, tx, fn)
}

// WithReadTransaction runs fn in a read-only transaction on the primary, so it sees every commit
// that happened before it started.
func (db *DB) WithReadTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.writer.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	return finish(ctx, tx, fn)
}

func finish(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p) // Re-throw
		} else if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		} else {
			err = tx.Commit(ctx)
		}
	}()
	err = fn(ctx, tx)
	return err
}

// Query runs on the primary.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.writer.Query(ctx, sql, args...)
}

// QueryReplica routes to a random reader (replica if available). Results may lag the primary.
func (db *DB) QueryReplica(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.getReader().Query(ctx, sql, args...)
}

// Ping checks the primary.
func (db *DB) Ping(ctx context.Context) error {
	return db.writer.Ping(ctx)
}

func (db *DB) getReader() *pgxpool.Pool {
	if len(db.readers) == 0 {
		return db.writer
	}
	return db.readers[rand.IntN(len(db.readers))]
}

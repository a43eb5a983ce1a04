package ledger

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"go.uber.org/zap"
)

// Ledger is the append-only log of transaction records. It has no update or delete.
type Ledger struct {
	store  Store
	logger *zap.Logger
	clock  Clock
}

func NewLedger(store Store, logger *zap.Logger, clock Clock) *Ledger {
	return &Ledger{store: store, logger: logger, clock: clock}
}

// Append persists record inside the caller's atomic unit. It assigns the id and timestamp,
// computes the digest when absent and rejects a digest that is already recorded.
func (l *Ledger) Append(ctx context.Context, tx Tx, record models.TransactionRecord) (models.TransactionRecord, error) {
	if err := validateAmount(record.Amount); err != nil {
		return models.TransactionRecord{}, err
	}
	if record.SenderID == record.ReceiverID {
		return models.TransactionRecord{}, pkg.SelfTransferRejected(record.SenderNumber)
	}
	if !record.Type.Valid() {
		return models.TransactionRecord{}, pkg.NewAppError(pkg.ErrInvalidInputCode, fmt.Sprintf("unknown transaction type %q", record.Type), nil)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = l.clock()
	}
	if record.Digest == "" {
		record.Digest = Digest(record.SenderNumber, record.ReceiverNumber, record.Amount, record.Timestamp, record.Description, NewNonce())
	}

	exists, err := tx.DigestExists(ctx, record.Digest)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	if exists {
		l.logger.Error("duplicate_digest_rejected",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.String(pkg.Digest, record.Digest))
		return models.TransactionRecord{}, pkg.DuplicateDigest(record.Digest)
	}
	if err := tx.InsertTransaction(ctx, record); err != nil {
		return models.TransactionRecord{}, err
	}
	return record, nil
}

// Query returns the records matching f, newest first. Nothing is read until the sequence is
// ranged over, and every range runs a fresh scan. A storage failure is yielded once as the
// final element.
func (l *Ledger) Query(ctx context.Context, f models.TransactionFilter) iter.Seq2[models.TransactionRecord, error] {
	return func(yield func(models.TransactionRecord, error) bool) {
		stopped := false
		err := l.store.ScanTransactions(ctx, f, func(r models.TransactionRecord) bool {
			if !yield(r, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(models.TransactionRecord{}, err)
		}
	}
}

// ByDigest loads one committed record.
func (l *Ledger) ByDigest(ctx context.Context, digest string) (models.TransactionRecord, error) {
	var out models.TransactionRecord
	err := l.store.View(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.FindTransactionByDigest(ctx, digest)
		if err != nil {
			return notFoundAs(err, pkg.NewAppError(pkg.ErrRecordNotFoundCode, fmt.Sprintf("no transaction with digest %s", digest), pkg.ErrRecordNotFound))
		}
		out = r
		return nil
	})
	return out, err
}

package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
)

// Store is the transactional storage backend the ledger runs on.
//
// Lookups that miss return an error matching pkg.ErrRecordNotFound.
// Waiting for locks is bounded; a timeout surfaces as pkg.ErrLockTimeout.
type Store interface {
	// WithTransaction runs fn as one atomic unit: everything fn wrote becomes visible
	// together when fn returns nil, nothing does otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn against committed state, including every commit that finished before it
	// started. Mutations inside fn fail.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// ScanTransactions streams committed records matching f, newest first, until yield returns false.
	// Only f.Stale scans may lag behind recent commits.
	ScanTransactions(ctx context.Context, f models.TransactionFilter, yield func(models.TransactionRecord) bool) error
}

// Tx is the unit-of-work view handed to Store callbacks.
type Tx interface {
	AccountTx
	TransactionTx
	DeviceTx
	PixKeyTx
}

type AccountTx interface {
	FindAccountByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	FindAccountByNumber(ctx context.Context, number string) (models.Account, error)
	FindAccountByPrincipal(ctx context.Context, principalID string) (models.Account, error)
	// LockAccounts locks the rows for the given account numbers until the unit ends and returns
	// them with fresh balances, ordered by account number. Unknown numbers are skipped.
	LockAccounts(ctx context.Context, numbers ...string) ([]models.Account, error)
	// InsertAccount returns false when the account number or principal is already taken.
	InsertAccount(ctx context.Context, account models.Account) (bool, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error
	SetProviderAccountID(ctx context.Context, id uuid.UUID, providerAccountID string, at time.Time) error
}

// TransactionTx has no update or delete: ledger records are append-only.
type TransactionTx interface {
	DigestExists(ctx context.Context, digest string) (bool, error)
	InsertTransaction(ctx context.Context, record models.TransactionRecord) error
	FindTransactionByDigest(ctx context.Context, digest string) (models.TransactionRecord, error)
}

type DeviceTx interface {
	// InsertDevice returns false when the device id is already registered.
	InsertDevice(ctx context.Context, device models.Device) (bool, error)
	FindDevice(ctx context.Context, deviceID string) (models.Device, error)
	ListDevicesByOwner(ctx context.Context, ownerAccountID uuid.UUID) ([]models.Device, error)
	UpdateDeviceCredential(ctx context.Context, id uuid.UUID, credentialHash string, at time.Time) error
	SetDeviceActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error
}

type PixKeyTx interface {
	// InsertPixKey returns false when the (type, value) pair is already registered.
	InsertPixKey(ctx context.Context, key models.PixKey) (bool, error)
	ListPixKeys(ctx context.Context, accountID uuid.UUID) ([]models.PixKey, error)
}

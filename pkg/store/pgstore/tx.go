package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
)

// tx adapts the repositories to ledger.Tx over one pgx transaction.
type tx struct {
	s  *Store
	pg pgx.Tx
}

// check maps misses to pkg.ErrRecordNotFound and driver errors to AppErrors.
func (t *tx) check(ctx context.Context, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", pkg.ErrRecordNotFound, err)
	}
	return t.s.mapErr(ctx, err)
}

func (t *tx) FindAccountByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	a, err := t.s.accounts.FindById(ctx, t.pg, id)
	return a, t.check(ctx, err)
}

func (t *tx) FindAccountByNumber(ctx context.Context, number string) (models.Account, error) {
	a, err := t.s.accounts.FindByNumber(ctx, t.pg, number)
	return a, t.check(ctx, err)
}

func (t *tx) FindAccountByPrincipal(ctx context.Context, principalID string) (models.Account, error) {
	a, err := t.s.accounts.FindByPrincipal(ctx, t.pg, principalID)
	return a, t.check(ctx, err)
}

func (t *tx) LockAccounts(ctx context.Context, numbers ...string) ([]models.Account, error) {
	accounts, err := t.s.accounts.LockByNumbers(ctx, t.pg, numbers)
	return accounts, t.check(ctx, err)
}

func (t *tx) InsertAccount(ctx context.Context, account models.Account) (bool, error) {
	ok, err := t.s.accounts.Create(ctx, t.pg, account)
	return ok, t.check(ctx, err)
}

func (t *tx) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	return t.check(ctx, t.s.accounts.UpdateBalance(ctx, t.pg, id, balance, at))
}

func (t *tx) SetProviderAccountID(ctx context.Context, id uuid.UUID, providerAccountID string, at time.Time) error {
	return t.check(ctx, t.s.accounts.UpdateProviderAccountID(ctx, t.pg, id, providerAccountID, at))
}

func (t *tx) DigestExists(ctx context.Context, digest string) (bool, error) {
	ok, err := t.s.transactions.ExistsByDigest(ctx, t.pg, digest)
	return ok, t.check(ctx, err)
}

func (t *tx) InsertTransaction(ctx context.Context, record models.TransactionRecord) error {
	return t.check(ctx, t.s.transactions.Create(ctx, t.pg, record))
}

func (t *tx) FindTransactionByDigest(ctx context.Context, digest string) (models.TransactionRecord, error) {
	r, err := t.s.transactions.FindByDigest(ctx, t.pg, digest)
	return r, t.check(ctx, err)
}

func (t *tx) InsertDevice(ctx context.Context, device models.Device) (bool, error) {
	ok, err := t.s.devices.Create(ctx, t.pg, device)
	return ok, t.check(ctx, err)
}

func (t *tx) FindDevice(ctx context.Context, deviceID string) (models.Device, error) {
	d, err := t.s.devices.FindByDeviceID(ctx, t.pg, deviceID)
	return d, t.check(ctx, err)
}

func (t *tx) ListDevicesByOwner(ctx context.Context, ownerAccountID uuid.UUID) ([]models.Device, error) {
	devices, err := t.s.devices.FindByOwner(ctx, t.pg, ownerAccountID)
	return devices, t.check(ctx, err)
}

func (t *tx) UpdateDeviceCredential(ctx context.Context, id uuid.UUID, credentialHash string, at time.Time) error {
	return t.check(ctx, t.s.devices.UpdateCredential(ctx, t.pg, id, credentialHash, at))
}

func (t *tx) SetDeviceActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	return t.check(ctx, t.s.devices.UpdateActive(ctx, t.pg, id, active, at))
}

func (t *tx) InsertPixKey(ctx context.Context, key models.PixKey) (bool, error) {
	ok, err := t.s.pixKeys.Create(ctx, t.pg, key)
	return ok, t.check(ctx, err)
}

func (t *tx) ListPixKeys(ctx context.Context, accountID uuid.UUID) ([]models.PixKey, error) {
	keys, err := t.s.pixKeys.FindByAccount(ctx, t.pg, accountID)
	return keys, t.check(ctx, err)
}

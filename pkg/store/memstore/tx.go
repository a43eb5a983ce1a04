package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
)

// tx overlays staged writes on the committed maps. Committed maps are only read here; the
// writer slot (or the read lock for views) keeps them stable for the life of tx.
type tx struct {
	s        *Store
	readOnly bool

	accounts map[uuid.UUID]models.Account
	records  []models.TransactionRecord
	digests  map[string]struct{}
	devices  map[uuid.UUID]models.Device
	pixKeys  []models.PixKey
}

func newTx(s *Store, readOnly bool) *tx {
	return &tx{
		s:        s,
		readOnly: readOnly,
		accounts: make(map[uuid.UUID]models.Account),
		digests:  make(map[string]struct{}),
		devices:  make(map[uuid.UUID]models.Device),
	}
}

func notFound(what, ref string) error {
	return fmt.Errorf("memstore: %s %q: %w", what, ref, pkg.ErrRecordNotFound)
}

// accounts

func (t *tx) account(id uuid.UUID) (models.Account, bool) {
	if a, ok := t.accounts[id]; ok {
		return cloneAccount(a), true
	}
	a, ok := t.s.accounts[id]
	return cloneAccount(a), ok
}

func (t *tx) accountIDByNumber(number string) (uuid.UUID, bool) {
	for id, a := range t.accounts {
		if a.AccountNumber == number {
			return id, true
		}
	}
	id, ok := t.s.accountByNumber[number]
	return id, ok
}

func (t *tx) FindAccountByID(_ context.Context, id uuid.UUID) (models.Account, error) {
	a, ok := t.account(id)
	if !ok {
		return models.Account{}, notFound("account", id.String())
	}
	return a, nil
}

func (t *tx) FindAccountByNumber(_ context.Context, number string) (models.Account, error) {
	id, ok := t.accountIDByNumber(number)
	if !ok {
		return models.Account{}, notFound("account", number)
	}
	a, _ := t.account(id)
	return a, nil
}

func (t *tx) FindAccountByPrincipal(_ context.Context, principalID string) (models.Account, error) {
	for _, a := range t.accounts {
		if a.PrincipalID == principalID {
			return cloneAccount(a), nil
		}
	}
	id, ok := t.s.accountByOwner[principalID]
	if !ok {
		return models.Account{}, notFound("account for principal", principalID)
	}
	a, _ := t.account(id)
	return a, nil
}

// LockAccounts needs no row locks: the unit already holds the store's writer slot.
func (t *tx) LockAccounts(_ context.Context, numbers ...string) ([]models.Account, error) {
	out := make([]models.Account, 0, len(numbers))
	seen := make(map[uuid.UUID]struct{}, len(numbers))
	for _, n := range numbers {
		id, ok := t.accountIDByNumber(n)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		a, _ := t.account(id)
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b models.Account) int { return cmp.Compare(a.AccountNumber, b.AccountNumber) })
	return out, nil
}

func (t *tx) InsertAccount(ctx context.Context, account models.Account) (bool, error) {
	if t.readOnly {
		return false, errReadOnly
	}
	if _, taken := t.accountIDByNumber(account.AccountNumber); taken {
		return false, nil
	}
	if _, err := t.FindAccountByPrincipal(ctx, account.PrincipalID); err == nil {
		return false, nil
	}
	if account.Balance.IsNegative() {
		return false, checkViolation("accounts.balance")
	}
	t.accounts[account.ID] = cloneAccount(account)
	return true, nil
}

func (t *tx) UpdateBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	if t.readOnly {
		return errReadOnly
	}
	if balance.IsNegative() {
		return checkViolation("accounts.balance")
	}
	a, ok := t.account(id)
	if !ok {
		return notFound("account", id.String())
	}
	a.Balance = balance
	a.UpdatedAt = at
	t.accounts[id] = a
	return nil
}

func (t *tx) SetProviderAccountID(_ context.Context, id uuid.UUID, providerAccountID string, at time.Time) error {
	if t.readOnly {
		return errReadOnly
	}
	a, ok := t.account(id)
	if !ok {
		return notFound("account", id.String())
	}
	a.ProviderAccountID = &providerAccountID
	a.UpdatedAt = at
	t.accounts[id] = a
	return nil
}

// transactions

func (t *tx) DigestExists(_ context.Context, digest string) (bool, error) {
	if _, ok := t.digests[digest]; ok {
		return true, nil
	}
	_, ok := t.s.digests[digest]
	return ok, nil
}

func (t *tx) InsertTransaction(ctx context.Context, record models.TransactionRecord) error {
	if t.readOnly {
		return errReadOnly
	}
	if exists, _ := t.DigestExists(ctx, record.Digest); exists {
		return pkg.NewAppError(pkg.ErrSQLDuplicateCode, "duplicate value violates unique constraint", pkg.SqlError)
	}
	t.records = append(t.records, cloneRecord(record))
	t.digests[record.Digest] = struct{}{}
	return nil
}

func (t *tx) FindTransactionByDigest(_ context.Context, digest string) (models.TransactionRecord, error) {
	for _, r := range t.records {
		if r.Digest == digest {
			return cloneRecord(r), nil
		}
	}
	for _, r := range t.s.records {
		if r.Digest == digest {
			return cloneRecord(r), nil
		}
	}
	return models.TransactionRecord{}, notFound("transaction", digest)
}

// devices

func (t *tx) device(deviceID string) (models.Device, bool) {
	for _, d := range t.devices {
		if d.DeviceID == deviceID {
			return cloneDevice(d), true
		}
	}
	id, ok := t.s.deviceByID[deviceID]
	if !ok {
		return models.Device{}, false
	}
	return cloneDevice(t.s.devices[id]), true
}

func (t *tx) InsertDevice(_ context.Context, device models.Device) (bool, error) {
	if t.readOnly {
		return false, errReadOnly
	}
	if _, taken := t.device(device.DeviceID); taken {
		return false, nil
	}
	t.devices[device.ID] = cloneDevice(device)
	return true, nil
}

func (t *tx) FindDevice(_ context.Context, deviceID string) (models.Device, error) {
	d, ok := t.device(deviceID)
	if !ok {
		return models.Device{}, notFound("device", deviceID)
	}
	return d, nil
}

func (t *tx) ListDevicesByOwner(_ context.Context, ownerAccountID uuid.UUID) ([]models.Device, error) {
	out := make([]models.Device, 0)
	for id, d := range t.s.devices {
		if staged, ok := t.devices[id]; ok {
			d = staged
		}
		if d.OwnerAccountID != nil && *d.OwnerAccountID == ownerAccountID {
			out = append(out, cloneDevice(d))
		}
	}
	for id, d := range t.devices {
		if _, committed := t.s.devices[id]; !committed && d.OwnerAccountID != nil && *d.OwnerAccountID == ownerAccountID {
			out = append(out, cloneDevice(d))
		}
	}
	slices.SortFunc(out, func(a, b models.Device) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (t *tx) updateDevice(id uuid.UUID, apply func(*models.Device)) error {
	if t.readOnly {
		return errReadOnly
	}
	d, ok := t.devices[id]
	if !ok {
		if d, ok = t.s.devices[id]; !ok {
			return notFound("device", id.String())
		}
		d = cloneDevice(d)
	}
	apply(&d)
	t.devices[id] = d
	return nil
}

func (t *tx) UpdateDeviceCredential(_ context.Context, id uuid.UUID, credentialHash string, at time.Time) error {
	return t.updateDevice(id, func(d *models.Device) {
		d.CredentialHash = credentialHash
		d.UpdatedAt = at
	})
}

func (t *tx) SetDeviceActive(_ context.Context, id uuid.UUID, active bool, at time.Time) error {
	return t.updateDevice(id, func(d *models.Device) {
		d.Active = active
		d.UpdatedAt = at
	})
}

// pix keys

func (t *tx) InsertPixKey(_ context.Context, key models.PixKey) (bool, error) {
	if t.readOnly {
		return false, errReadOnly
	}
	for _, k := range slices.Concat(t.s.pixKeys, t.pixKeys) {
		if k.KeyType == key.KeyType && k.KeyValue == key.KeyValue {
			return false, nil
		}
	}
	t.pixKeys = append(t.pixKeys, key)
	return true, nil
}

func (t *tx) ListPixKeys(_ context.Context, accountID uuid.UUID) ([]models.PixKey, error) {
	out := make([]models.PixKey, 0)
	for _, k := range slices.Concat(t.s.pixKeys, t.pixKeys) {
		if k.AccountID == accountID {
			out = append(out, k)
		}
	}
	return out, nil
}

func checkViolation(constraint string) error {
	return pkg.NewAppError(pkg.ErrBusinessRuleCode, "check constraint violated", fmt.Errorf("memstore: %s", constraint))
}

func cloneAccount(a models.Account) models.Account {
	if a.ProviderAccountID != nil {
		v := *a.ProviderAccountID
		a.ProviderAccountID = &v
	}
	return a
}

func cloneRecord(r models.TransactionRecord) models.TransactionRecord {
	if r.DeviceID != nil {
		v := *r.DeviceID
		r.DeviceID = &v
	}
	return r
}

func cloneDevice(d models.Device) models.Device {
	if d.OwnerAccountID != nil {
		v := *d.OwnerAccountID
		d.OwnerAccountID = &v
	}
	return d
}

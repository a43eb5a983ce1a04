// Package memstore is an in-process ledger.Store for development and tests.
//
// Atomic units are serialized through a single writer slot acquired with a bounded wait.
// Writes are staged on the unit and published under one lock at commit, so readers see
// either all of a unit or none of it.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

const DefaultLockTimeout = 2 * time.Second

var errReadOnly = errors.New("memstore: mutation inside a read-only view")

type Store struct {
	slot        chan struct{}
	lockTimeout time.Duration

	mu              sync.RWMutex
	accounts        map[uuid.UUID]models.Account
	accountByNumber map[string]uuid.UUID
	accountByOwner  map[string]uuid.UUID
	records         []models.TransactionRecord
	digests         map[string]struct{}
	devices         map[uuid.UUID]models.Device
	deviceByID      map[string]uuid.UUID
	pixKeys         []models.PixKey
}

// New returns an empty store. lockTimeout bounds the wait for the writer slot.
func New(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		slot:            make(chan struct{}, 1),
		lockTimeout:     lockTimeout,
		accounts:        make(map[uuid.UUID]models.Account),
		accountByNumber: make(map[string]uuid.UUID),
		accountByOwner:  make(map[string]uuid.UUID),
		digests:         make(map[string]struct{}),
		devices:         make(map[uuid.UUID]models.Device),
		deviceByID:      make(map[string]uuid.UUID),
	}
}

var _ ledger.Store = (*Store)(nil)

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-s.slot }()

	t := newTx(s, false)
	if err := fn(ctx, t); err != nil {
		return err // staged writes are dropped with t
	}
	s.commit(t)
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, newTx(s, true))
}

func (s *Store) ScanTransactions(ctx context.Context, f models.TransactionFilter, yield func(models.TransactionRecord) bool) error {
	s.mu.RLock()
	matched := make([]models.TransactionRecord, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if f.Matches(s.records[i]) {
			matched = append(matched, cloneRecord(s.records[i]))
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b models.TransactionRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	for _, r := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !yield(r) {
			return nil
		}
	}
	return nil
}

func (s *Store) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-timer.C:
		return pkg.LockTimeout(fmt.Errorf("memstore: writer slot busy for %s", s.lockTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commit publishes staged writes. Only the writer slot holder calls it.
func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range t.accounts {
		if old, ok := s.accounts[id]; !ok {
			s.accountByNumber[a.AccountNumber] = id
			s.accountByOwner[a.PrincipalID] = id
		} else if old.AccountNumber != a.AccountNumber {
			delete(s.accountByNumber, old.AccountNumber)
			s.accountByNumber[a.AccountNumber] = id
		}
		s.accounts[id] = a
	}
	for _, r := range t.records {
		s.records = append(s.records, r)
		s.digests[r.Digest] = struct{}{}
	}
	for id, d := range t.devices {
		s.devices[id] = d
		s.deviceByID[d.DeviceID] = id
	}
	s.pixKeys = append(s.pixKeys, t.pixKeys...)
}

// Snapshot returns copies of every account and record. Tests use it to check totals.
func (s *Store) Snapshot() ([]models.Account, []models.TransactionRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, cloneAccount(a))
	}
	slices.SortFunc(accounts, func(a, b models.Account) int { return cmp.Compare(a.AccountNumber, b.AccountNumber) })
	records := make([]models.TransactionRecord, len(s.records))
	for i, r := range s.records {
		records[i] = cloneRecord(r)
	}
	return accounts, records
}

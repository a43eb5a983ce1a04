package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WelcomeCredit is the opening balance of every new account.
var WelcomeCredit = decimal.RequireFromString("1000.00")

const (
	accountNumberDigits   = 10
	accountNumberAttempts = 5
)

// AccountStore owns account balances. Balances never go below zero.
type AccountStore struct {
	store     Store
	logger    *zap.Logger
	clock     Clock
	newNumber func() string
}

func NewAccountStore(store Store, logger *zap.Logger, clock Clock) *AccountStore {
	return &AccountStore{store: store, logger: logger, clock: clock, newNumber: newAccountNumber}
}

// GetOrCreate returns the principal's account, opening it with WelcomeCredit on first call.
func (a *AccountStore) GetOrCreate(ctx context.Context, principalID string) (models.Account, error) {
	if utils.IsEmpty(principalID) {
		return models.Account{}, pkg.NewAppError(pkg.ErrInvalidInputCode, "principal id is required", nil)
	}
	var (
		account models.Account
		created bool
	)
	err := a.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.FindAccountByPrincipal(ctx, principalID)
		if err == nil {
			account = existing
			return nil
		}
		if !errors.Is(err, pkg.ErrRecordNotFound) {
			return err
		}

		now := a.clock()
		for range accountNumberAttempts {
			candidate := models.Account{
				ID:            uuid.New(),
				AccountNumber: a.newNumber(),
				PrincipalID:   principalID,
				Balance:       WelcomeCredit,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			inserted, err := tx.InsertAccount(ctx, candidate)
			if err != nil {
				return err
			}
			if inserted {
				account, created = candidate, true
				return nil
			}
			// Either a concurrent call opened the account first or the number collided.
			existing, err := tx.FindAccountByPrincipal(ctx, principalID)
			if err == nil {
				account = existing
				return nil
			}
			if !errors.Is(err, pkg.ErrRecordNotFound) {
				return err
			}
		}
		return fmt.Errorf("no free account number after %d attempts", accountNumberAttempts)
	})
	if err != nil {
		return models.Account{}, err
	}
	if created {
		a.logger.Info("account_opened",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.String(pkg.PrincipalId, principalID),
			zap.String(pkg.AccountNumber, account.AccountNumber))
	}
	return account, nil
}

// Debit decreases the balance of an account in its own atomic unit.
func (a *AccountStore) Debit(ctx context.Context, accountNumber string, amount decimal.Decimal) (models.Account, error) {
	return a.mutate(ctx, accountNumber, amount, a.debit)
}

// Credit increases the balance of an account in its own atomic unit.
func (a *AccountStore) Credit(ctx context.Context, accountNumber string, amount decimal.Decimal) (models.Account, error) {
	return a.mutate(ctx, accountNumber, amount, a.credit)
}

// Resolve finds an account by its external number.
func (a *AccountStore) Resolve(ctx context.Context, accountNumber string) (models.Account, error) {
	return a.view(ctx, accountNumber, func(ctx context.Context, tx Tx) (models.Account, error) {
		return tx.FindAccountByNumber(ctx, accountNumber)
	})
}

// ByPrincipal finds the account owned by a principal without creating it.
func (a *AccountStore) ByPrincipal(ctx context.Context, principalID string) (models.Account, error) {
	return a.view(ctx, principalID, func(ctx context.Context, tx Tx) (models.Account, error) {
		return tx.FindAccountByPrincipal(ctx, principalID)
	})
}

func (a *AccountStore) ByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return a.view(ctx, id.String(), func(ctx context.Context, tx Tx) (models.Account, error) {
		return tx.FindAccountByID(ctx, id)
	})
}

// LinkProviderAccount records the id the external banking provider assigned to the account.
func (a *AccountStore) LinkProviderAccount(ctx context.Context, id uuid.UUID, providerAccountID string) (models.Account, error) {
	var out models.Account
	err := a.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		account, err := tx.FindAccountByID(ctx, id)
		if err != nil {
			return notFoundAs(err, pkg.AccountNotFound(id.String()))
		}
		now := a.clock()
		if err := tx.SetProviderAccountID(ctx, id, providerAccountID, now); err != nil {
			return err
		}
		account.ProviderAccountID = &providerAccountID
		account.UpdatedAt = now
		out = account
		return nil
	})
	return out, err
}

// AddPixKey stores a pix key for the account.
func (a *AccountStore) AddPixKey(ctx context.Context, accountID uuid.UUID, keyType, keyValue string) (models.PixKey, error) {
	key := models.PixKey{ID: uuid.New(), AccountID: accountID, KeyType: keyType, KeyValue: keyValue, CreatedAt: a.clock()}
	err := a.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		inserted, err := tx.InsertPixKey(ctx, key)
		if err != nil {
			return err
		}
		if !inserted {
			return pkg.NewAppError(pkg.ErrSQLDuplicateCode, "pix key already registered", nil)
		}
		return nil
	})
	if err != nil {
		return models.PixKey{}, err
	}
	return key, nil
}

func (a *AccountStore) PixKeys(ctx context.Context, accountID uuid.UUID) ([]models.PixKey, error) {
	var keys []models.PixKey
	err := a.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		keys, err = tx.ListPixKeys(ctx, accountID)
		return err
	})
	return keys, err
}

func (a *AccountStore) view(ctx context.Context, ref string, find func(ctx context.Context, tx Tx) (models.Account, error)) (models.Account, error) {
	var out models.Account
	err := a.store.View(ctx, func(ctx context.Context, tx Tx) error {
		account, err := find(ctx, tx)
		if err != nil {
			return notFoundAs(err, pkg.AccountNotFound(ref))
		}
		out = account
		return nil
	})
	return out, err
}

func (a *AccountStore) mutate(ctx context.Context, accountNumber string, amount decimal.Decimal,
	apply func(context.Context, Tx, models.Account, decimal.Decimal) (models.Account, error)) (models.Account, error) {
	if err := validateAmount(amount); err != nil {
		return models.Account{}, err
	}
	var out models.Account
	err := a.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockAccounts(ctx, accountNumber)
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return pkg.AccountNotFound(accountNumber)
		}
		out, err = apply(ctx, tx, locked[0], amount)
		return err
	})
	return out, err
}

// debit expects the account row to be locked by the caller's unit.
func (a *AccountStore) debit(ctx context.Context, tx Tx, account models.Account, amount decimal.Decimal) (models.Account, error) {
	next := account.Balance.Sub(amount)
	if next.IsNegative() {
		return account, pkg.InsufficientFunds(account.AccountNumber, account.Balance.StringFixed(2), amount.StringFixed(2))
	}
	return a.setBalance(ctx, tx, account, next)
}

// credit expects the account row to be locked by the caller's unit.
func (a *AccountStore) credit(ctx context.Context, tx Tx, account models.Account, amount decimal.Decimal) (models.Account, error) {
	return a.setBalance(ctx, tx, account, account.Balance.Add(amount))
}

func (a *AccountStore) setBalance(ctx context.Context, tx Tx, account models.Account, balance decimal.Decimal) (models.Account, error) {
	account.Balance = balance.Round(2)
	account.UpdatedAt = a.clock()
	if err := tx.UpdateBalance(ctx, account.ID, account.Balance, account.UpdatedAt); err != nil {
		return account, err
	}
	return account, nil
}

// validateAmount accepts strictly positive amounts with at most two decimals.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkg.InvalidAmount(fmt.Sprintf("amount must be positive, got %s", amount.String()))
	}
	if !amount.Equal(amount.Round(2)) {
		return pkg.InvalidAmount(fmt.Sprintf("amount %s has more than two decimal places", amount.String()))
	}
	return nil
}

// notFoundAs swaps a storage miss for a domain error and passes anything else through.
func notFoundAs(err error, domainErr error) error {
	if errors.Is(err, pkg.ErrRecordNotFound) {
		return domainErr
	}
	return err
}

// newAccountNumber draws a 10 digit number from a random UUID.
func newAccountNumber() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[:8]) % 10_000_000_000
	return fmt.Sprintf("%0*d", accountNumberDigits, n)
}

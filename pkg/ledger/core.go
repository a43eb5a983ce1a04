// Package ledger holds the banking core: balances, the append-only transaction log,
// the atomic transfer protocol and the device spending gates.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Clock is the time source for record timestamps and day windows.
type Clock func() time.Time

// SystemClock returns the wall clock in UTC, truncated to the microsecond precision Postgres keeps.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Config wires the core components.
type Config struct {
	Store      Store
	Logger     *zap.Logger
	Clock      Clock           // defaults to SystemClock
	DailyLimit decimal.Decimal // defaults to DefaultDailyLimit
	Retry      RetryPolicy     // defaults to DefaultRetryPolicy
}

// Core groups the components that make up the ledger.
type Core struct {
	Accounts  *AccountStore
	Ledger    *Ledger
	Transfers *TransferEngine
	Rules     *SpendingRuleEngine
	Devices   *DeviceAuthenticator
}

// New builds every component over one store.
func New(cfg Config) *Core {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if !cfg.DailyLimit.IsPositive() {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}

	accounts := NewAccountStore(cfg.Store, cfg.Logger, cfg.Clock)
	ledger := NewLedger(cfg.Store, cfg.Logger, cfg.Clock)
	return &Core{
		Accounts:  accounts,
		Ledger:    ledger,
		Transfers: NewTransferEngine(cfg.Store, accounts, ledger, cfg.Logger, cfg.Retry),
		Rules:     NewSpendingRuleEngine(ledger, cfg.DailyLimit, cfg.Clock),
		Devices:   NewDeviceAuthenticator(cfg.Store, cfg.Logger, cfg.Clock),
	}
}

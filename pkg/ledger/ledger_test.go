package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/store/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// tickClock advances a millisecond per reading so records get distinct timestamps.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *tickClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	core  *ledger.Core
	store *memstore.Store
	clock *tickClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := &tickClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := memstore.New(time.Second)
	core := ledger.New(ledger.Config{
		Store:  store,
		Logger: zap.NewNop(),
		Clock:  clock.Now,
		Retry:  ledger.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	})
	return fixture{core: core, store: store, clock: clock}
}

func (f fixture) open(t *testing.T, principal string) models.Account {
	t.Helper()
	acc, err := f.core.Accounts.GetOrCreate(context.Background(), principal)
	require.NoError(t, err)
	return acc
}

func (f fixture) balance(t *testing.T, number string) decimal.Decimal {
	t.Helper()
	acc, err := f.core.Accounts.Resolve(context.Background(), number)
	require.NoError(t, err)
	return acc.Balance
}

func (f fixture) records() []models.TransactionRecord {
	_, records := f.store.Snapshot()
	return records
}

func (f fixture) total() decimal.Decimal {
	accounts, _ := f.store.Snapshot()
	sum := decimal.Zero
	for _, a := range accounts {
		sum = sum.Add(a.Balance)
	}
	return sum
}

func TestTransfer_Succeeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")
	assert.True(t, a1.Balance.Equal(dec("1000.00")))
	assert.True(t, a2.Balance.Equal(dec("1000.00")))

	rec, err := f.core.Transfers.Transfer(ctx, ledger.TransferRequest{
		SenderAccount:   a1.AccountNumber,
		ReceiverAccount: a2.AccountNumber,
		Amount:          dec("300.00"),
		Description:     "rent",
	})
	require.NoError(t, err)

	assert.True(t, f.balance(t, a1.AccountNumber).Equal(dec("700.00")))
	assert.True(t, f.balance(t, a2.AccountNumber).Equal(dec("1300.00")))

	records := f.records()
	require.Len(t, records, 1)
	assert.Equal(t, rec, records[0])
	assert.Equal(t, pkg.TransactionTypeTransfer, rec.Type)
	assert.True(t, rec.Amount.Equal(dec("300.00")))
	assert.Equal(t, a1.ID, rec.SenderID)
	assert.Equal(t, a2.ID, rec.ReceiverID)
	assert.Equal(t, "rent", rec.Description)
	assert.Len(t, rec.Digest, ledger.DigestLength)
	assert.False(t, rec.Timestamp.IsZero())
	assert.True(t, f.total().Equal(dec("2000.00")))
}

func TestTransfer_RejectedPreconditions(t *testing.T) {
	f := newFixture(t)
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")

	cases := []struct {
		name string
		req  ledger.TransferRequest
		want error
	}{
		{"negative amount", ledger.TransferRequest{SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("-5.00")}, pkg.ErrInvalidAmount},
		{"zero amount", ledger.TransferRequest{SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: decimal.Zero}, pkg.ErrInvalidAmount},
		{"sub-cent amount", ledger.TransferRequest{SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("0.001")}, pkg.ErrInvalidAmount},
		{"missing sender", ledger.TransferRequest{SenderAccount: "", ReceiverAccount: a2.AccountNumber, Amount: dec("10.00")}, pkg.ErrSenderAccountMissing},
		{"unknown sender", ledger.TransferRequest{SenderAccount: "9999999999", ReceiverAccount: a2.AccountNumber, Amount: dec("10.00")}, pkg.ErrSenderAccountMissing},
		{"unknown receiver", ledger.TransferRequest{SenderAccount: a1.AccountNumber, ReceiverAccount: "nonexistent-acct", Amount: dec("10.00")}, pkg.ErrReceiverAccountNotFound},
		{"self transfer", ledger.TransferRequest{SenderAccount: a1.AccountNumber, ReceiverAccount: a1.AccountNumber, Amount: dec("10.00")}, pkg.ErrSelfTransferRejected},
		{"insufficient funds", ledger.TransferRequest{SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("1000.01")}, pkg.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.core.Transfers.Transfer(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)

			var appErr pkg.AppError
			assert.True(t, errors.As(err, &appErr))
			assert.Empty(t, f.records())
			assert.True(t, f.balance(t, a1.AccountNumber).Equal(dec("1000.00")))
			assert.True(t, f.balance(t, a2.AccountNumber).Equal(dec("1000.00")))
		})
	}
}

func TestTransfer_InsufficientFundsLeavesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")
	_, err := f.core.Accounts.Debit(ctx, a1.AccountNumber, dec("950.00"))
	require.NoError(t, err)

	_, err = f.core.Transfers.Transfer(ctx, ledger.TransferRequest{
		SenderAccount:   a1.AccountNumber,
		ReceiverAccount: a2.AccountNumber,
		Amount:          dec("100.00"),
	})
	assert.ErrorIs(t, err, pkg.ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "balance: 50.00")
	assert.True(t, f.balance(t, a1.AccountNumber).Equal(dec("50.00")))
	assert.Empty(t, f.records())
}

func TestTransfer_ExactBalanceDrainsToZero(t *testing.T) {
	f := newFixture(t)
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")

	_, err := f.core.Transfers.Transfer(context.Background(), ledger.TransferRequest{
		SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("1000.00"),
	})
	require.NoError(t, err)
	assert.True(t, f.balance(t, a1.AccountNumber).IsZero())
}

func TestTransfer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")
	_, err := f.core.Accounts.Debit(ctx, a1.AccountNumber, dec("900.00"))
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		ok       atomic.Int32
		rejected atomic.Int32
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.core.Transfers.TransferWithRetry(ctx, ledger.TransferRequest{
				SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("80.00"),
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, pkg.ErrInsufficientFunds):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), rejected.Load())
	assert.True(t, f.balance(t, a1.AccountNumber).Equal(dec("20.00")))
	assert.Len(t, f.records(), 1)
}

func TestTransfer_ConcurrentMeshConservesMoney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accounts := []models.Account{f.open(t, "p1"), f.open(t, "p2"), f.open(t, "p3"), f.open(t, "p4")}
	amounts := []string{"75.00", "120.50", "333.33", "10.01", "999.99"}

	var (
		wg        sync.WaitGroup
		committed atomic.Int32
	)
	for i := range 40 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := accounts[i%4]
			to := accounts[(i+1+i/4)%4]
			if from.ID == to.ID {
				to = accounts[(i+1)%4]
			}
			_, err := f.core.Transfers.TransferWithRetry(ctx, ledger.TransferRequest{
				SenderAccount: from.AccountNumber, ReceiverAccount: to.AccountNumber, Amount: dec(amounts[i%len(amounts)]),
			})
			if err == nil {
				committed.Add(1)
				return
			}
			if !errors.Is(err, pkg.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	snapshot, records := f.store.Snapshot()
	for _, a := range snapshot {
		assert.False(t, a.Balance.IsNegative(), a.AccountNumber)
	}
	assert.True(t, f.total().Equal(dec("4000.00")))
	assert.Len(t, records, int(committed.Load()))

	digests := make(map[string]struct{}, len(records))
	for _, r := range records {
		digests[r.Digest] = struct{}{}
	}
	assert.Len(t, digests, len(records))
}

func TestTransfer_LockTimeoutIsRetried(t *testing.T) {
	clock := &tickClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := memstore.New(20 * time.Millisecond)
	core := ledger.New(ledger.Config{
		Store:  store,
		Logger: zap.NewNop(),
		Clock:  clock.Now,
		Retry:  ledger.RetryPolicy{MaxRetries: 5, InitialInterval: 20 * time.Millisecond, MaxInterval: 50 * time.Millisecond},
	})
	ctx := context.Background()
	a1, err := core.Accounts.GetOrCreate(ctx, "p1")
	require.NoError(t, err)
	a2, err := core.Accounts.GetOrCreate(ctx, "p2")
	require.NoError(t, err)

	// Hold the writer slot past one lock timeout.
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithTransaction(ctx, func(context.Context, ledger.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	req := ledger.TransferRequest{SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("1.00")}
	_, err = core.Transfers.Transfer(ctx, req)
	assert.ErrorIs(t, err, pkg.ErrLockTimeout)

	time.AfterFunc(30*time.Millisecond, func() { close(release) })
	_, err = core.Transfers.TransferWithRetry(ctx, req)
	require.NoError(t, err)

	acc, err := core.Accounts.Resolve(ctx, a1.AccountNumber)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("999.00")))
}

func TestRetryTransient_OnlyRetriesLockTimeout(t *testing.T) {
	policy := ledger.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	ctx := context.Background()

	calls := 0
	_, err := ledger.RetryTransient(ctx, policy, zap.NewNop(), func(context.Context) (int, error) {
		calls++
		return 0, pkg.InsufficientFunds("1", "0.00", "1.00")
	})
	assert.ErrorIs(t, err, pkg.ErrInsufficientFunds)
	assert.Equal(t, 1, calls)

	calls = 0
	_, err = ledger.RetryTransient(ctx, policy, zap.NewNop(), func(context.Context) (int, error) {
		calls++
		return 0, pkg.LockTimeout(errors.New("busy"))
	})
	assert.ErrorIs(t, err, pkg.ErrLockTimeout)
	assert.Equal(t, 4, calls)

	calls = 0
	v, err := ledger.RetryTransient(ctx, policy, zap.NewNop(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, pkg.LockTimeout(errors.New("busy"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestAccounts_GetOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan models.Account, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := f.core.Accounts.GetOrCreate(ctx, "same-principal")
			assert.NoError(t, err)
			ids <- acc
		}()
	}
	wg.Wait()
	close(ids)

	first := <-ids
	for acc := range ids {
		assert.Equal(t, first.ID, acc.ID)
		assert.Equal(t, first.AccountNumber, acc.AccountNumber)
	}
	accounts, records := f.store.Snapshot()
	assert.Len(t, accounts, 1)
	assert.Empty(t, records, "the opening credit is not a ledger record")
	assert.Regexp(t, "^[0-9]{10}$", first.AccountNumber)

	_, err := f.core.Accounts.GetOrCreate(ctx, "  ")
	assert.Error(t, err)
}

func TestAccounts_DebitCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")

	acc, err := f.core.Accounts.Credit(ctx, a1.AccountNumber, dec("0.10"))
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("1000.10")))

	_, err = f.core.Accounts.Debit(ctx, a1.AccountNumber, dec("1000.11"))
	assert.ErrorIs(t, err, pkg.ErrInsufficientFunds)

	_, err = f.core.Accounts.Debit(ctx, "0000000000", dec("1.00"))
	assert.ErrorIs(t, err, pkg.ErrAccountNotFound)

	_, err = f.core.Accounts.Credit(ctx, a1.AccountNumber, dec("-1.00"))
	assert.ErrorIs(t, err, pkg.ErrInvalidAmount)
	assert.True(t, f.balance(t, a1.AccountNumber).Equal(dec("1000.10")))
}

func TestLedger_AppendRejectsDuplicateDigest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")

	rec, err := f.core.Transfers.Transfer(ctx, ledger.TransferRequest{
		SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("1.00"),
	})
	require.NoError(t, err)

	err = f.store.WithTransaction(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := f.core.Ledger.Append(ctx, tx, models.TransactionRecord{
			SenderID: a1.ID, ReceiverID: a2.ID,
			SenderNumber: a1.AccountNumber, ReceiverNumber: a2.AccountNumber,
			Amount: dec("1.00"), Type: pkg.TransactionTypeTransfer,
			Digest: rec.Digest,
		})
		return err
	})
	assert.ErrorIs(t, err, pkg.ErrDuplicateDigest)
	assert.Len(t, f.records(), 1)
}

func TestLedger_QueryNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")
	a3 := f.open(t, "p3")

	for _, amt := range []string{"1.00", "2.00", "3.00"} {
		_, err := f.core.Transfers.Transfer(ctx, ledger.TransferRequest{
			SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec(amt),
		})
		require.NoError(t, err)
	}
	_, err := f.core.Transfers.Transfer(ctx, ledger.TransferRequest{
		SenderAccount: a2.AccountNumber, ReceiverAccount: a3.AccountNumber, Amount: dec("4.00"),
	})
	require.NoError(t, err)

	var got []string
	for rec, err := range f.core.Ledger.Query(ctx, models.TransactionFilter{AccountID: &a1.ID}) {
		require.NoError(t, err)
		got = append(got, rec.Amount.StringFixed(2))
	}
	assert.Equal(t, []string{"3.00", "2.00", "1.00"}, got)

	got = got[:0]
	for rec, err := range f.core.Ledger.Query(ctx, models.TransactionFilter{AccountID: &a2.ID, Limit: 2}) {
		require.NoError(t, err)
		got = append(got, rec.Amount.StringFixed(2))
	}
	assert.Equal(t, []string{"4.00", "3.00"}, got)

	n := 0
	for range f.core.Ledger.Query(ctx, models.TransactionFilter{}) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestLedger_RecordsAreImmutableCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")

	rec, err := f.core.Transfers.Transfer(ctx, ledger.TransferRequest{
		SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("5.00"),
	})
	require.NoError(t, err)

	loaded, err := f.core.Ledger.ByDigest(ctx, rec.Digest)
	require.NoError(t, err)
	loaded.Amount = dec("999.00")
	loaded.Description = "tampered"

	again, err := f.core.Ledger.ByDigest(ctx, rec.Digest)
	require.NoError(t, err)
	assert.Equal(t, rec, again)

	_, err = f.core.Ledger.ByDigest(ctx, "missing")
	assert.ErrorIs(t, err, pkg.ErrRecordNotFound)
}

func TestDevices_Authenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")

	device, credential, err := f.core.Devices.Register(ctx, a1.ID, "esp32-kitchen", "Kitchen", "home")
	require.NoError(t, err)
	assert.NotEmpty(t, credential)
	assert.NotEqual(t, credential, device.CredentialHash)
	assert.True(t, device.Active)

	got, err := f.core.Devices.Authenticate(ctx, "esp32-kitchen", credential)
	require.NoError(t, err)
	assert.Equal(t, device.ID, got.ID)

	_, err = f.core.Devices.Authenticate(ctx, "esp32-kitchen", "wrong")
	assert.ErrorIs(t, err, pkg.ErrDeviceUnauthorized)

	_, err = f.core.Devices.Authenticate(ctx, "unknown", credential)
	assert.ErrorIs(t, err, pkg.ErrDeviceNotFound)

	_, _, err = f.core.Devices.Register(ctx, a1.ID, "esp32-kitchen", "Again", "")
	assert.Error(t, err)
}

func TestDevices_RotateAndDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")
	a2 := f.open(t, "p2")
	device, oldCredential, err := f.core.Devices.Register(ctx, a1.ID, "pos-1", "POS", "")
	require.NoError(t, err)

	newCredential, err := f.core.Devices.RotateCredential(ctx, "pos-1")
	require.NoError(t, err)
	assert.NotEqual(t, oldCredential, newCredential)

	_, err = f.core.Devices.Authenticate(ctx, "pos-1", oldCredential)
	assert.ErrorIs(t, err, pkg.ErrDeviceUnauthorized)
	_, err = f.core.Devices.Authenticate(ctx, "pos-1", newCredential)
	require.NoError(t, err)

	deviceID := device.ID
	rec, err := f.core.Transfers.Transfer(ctx, ledger.TransferRequest{
		SenderAccount: a1.AccountNumber, ReceiverAccount: a2.AccountNumber, Amount: dec("5.00"),
		Type: pkg.TransactionTypePayment, DeviceID: &deviceID,
	})
	require.NoError(t, err)

	deactivated, err := f.core.Devices.Deactivate(ctx, "pos-1")
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	_, err = f.core.Devices.Authenticate(ctx, "pos-1", newCredential)
	assert.ErrorIs(t, err, pkg.ErrDeviceUnauthorized)

	kept, err := f.core.Ledger.ByDigest(ctx, rec.Digest)
	require.NoError(t, err)
	require.NotNil(t, kept.DeviceID)
	assert.Equal(t, device.ID, *kept.DeviceID)

	devices, err := f.core.Devices.ListByOwner(ctx, a1.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.False(t, devices[0].Active)
}

func TestRules_DailyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.open(t, "p1")
	merchant := f.open(t, "merchant")
	device, _, err := f.core.Devices.Register(ctx, a1.ID, "iot-1", "Fridge", "")
	require.NoError(t, err)

	allowed, reason, err := f.core.Rules.CheckDailyLimit(ctx, device, dec("30.00"))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, "approved", reason)

	deviceID := device.ID
	_, err = f.core.Transfers.Transfer(ctx, ledger.TransferRequest{
		SenderAccount: a1.AccountNumber, ReceiverAccount: merchant.AccountNumber, Amount: dec("30.00"),
		Type: pkg.TransactionTypePayment, DeviceID: &deviceID,
	})
	require.NoError(t, err)

	allowed, reason, err = f.core.Rules.CheckDailyLimit(ctx, device, dec("25.00"))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, "daily limit exceeded (used: 30.00, limit: 50.00)", reason)

	allowed, _, err = f.core.Rules.CheckDailyLimit(ctx, device, dec("20.00"))
	require.NoError(t, err)
	assert.True(t, allowed, "reaching the limit exactly is allowed")

	// A new UTC day starts from zero.
	f.clock.Set(time.Date(2024, 3, 2, 0, 0, 1, 0, time.UTC))
	allowed, _, err = f.core.Rules.CheckDailyLimit(ctx, device, dec("50.00"))
	require.NoError(t, err)
	assert.True(t, allowed)

	used, err := f.core.Rules.UsedToday(ctx, device)
	require.NoError(t, err)
	assert.True(t, used.IsZero())
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRecords struct {
	records  map[string]models.TransactionRecord
	failures int // lock timeouts returned before answering
	calls    int
	err      error
}

func (f *fakeRecords) ByDigest(_ context.Context, digest string) (models.TransactionRecord, error) {
	f.calls++
	if f.calls <= f.failures {
		return models.TransactionRecord{}, pkg.LockTimeout(errors.New("row busy"))
	}
	if f.err != nil {
		return models.TransactionRecord{}, f.err
	}
	r, ok := f.records[digest]
	if !ok {
		return models.TransactionRecord{}, pkg.ErrRecordNotFound
	}
	return r, nil
}

func sampleRecord() models.TransactionRecord {
	device := uuid.New()
	return models.TransactionRecord{
		ID:             uuid.New(),
		Digest:         "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		SenderID:       uuid.New(),
		SenderNumber:   "1234567890",
		ReceiverID:     uuid.New(),
		ReceiverNumber: "0987654321",
		Amount:         decimal.RequireFromString("30.00"),
		Type:           pkg.TransactionTypePayment,
		Description:    "[IoT] Fridge: milk",
		DeviceID:       &device,
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC),
	}
}

func newTestAuditor(src RecordSource) Auditor {
	return NewAuditor(AuditorConfig{
		Logger:  zap.NewNop(),
		Records: src,
		Retry:   ledger.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	})
}

func TestAudit_Match(t *testing.T) {
	rec := sampleRecord()
	a := newTestAuditor(&fakeRecords{records: map[string]models.TransactionRecord{rec.Digest: rec}})

	ev := rec.ToLedgerEvent("trace-1")
	ev.Amount = "30" // same value, different scale
	ev.Timestamp = rec.Timestamp.In(time.FixedZone("BRT", -3*3600))

	v, err := a.Audit(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, v.Match)
	assert.Equal(t, "match", v.String())
}

func TestAudit_RecordMissing(t *testing.T) {
	rec := sampleRecord()
	a := newTestAuditor(&fakeRecords{})

	v, err := a.Audit(context.Background(), rec.ToLedgerEvent(""))
	require.NoError(t, err)
	assert.False(t, v.Match)
	assert.Equal(t, ReasonRecordMissing, v.Reason)
}

func TestAudit_FieldMismatch(t *testing.T) {
	rec := sampleRecord()
	a := newTestAuditor(&fakeRecords{records: map[string]models.TransactionRecord{rec.Digest: rec}})

	ev := rec.ToLedgerEvent("")
	ev.Amount = "3000.00"
	ev.ReceiverNumber = "5555555555"
	ev.DeviceID = ""

	v, err := a.Audit(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, v.Match)
	assert.Equal(t, ReasonFieldMismatch, v.Reason)
	assert.Equal(t, []string{"receiverAccount", "amount", "deviceId"}, v.Fields)
	assert.Equal(t, "field_mismatch [receiverAccount amount deviceId]", v.String())
}

func TestAudit_RetriesLockTimeouts(t *testing.T) {
	rec := sampleRecord()
	src := &fakeRecords{records: map[string]models.TransactionRecord{rec.Digest: rec}, failures: 2}
	a := newTestAuditor(src)

	v, err := a.Audit(context.Background(), rec.ToLedgerEvent(""))
	require.NoError(t, err)
	assert.True(t, v.Match)
	assert.Equal(t, 3, src.calls)
}

func TestAudit_ReadError(t *testing.T) {
	rec := sampleRecord()
	src := &fakeRecords{err: errors.New("connection reset")}
	a := newTestAuditor(src)

	_, err := a.Audit(context.Background(), rec.ToLedgerEvent(""))
	require.Error(t, err)
	assert.Equal(t, 1, src.calls, "only lock timeouts are retried")
}

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Audit outcomes. They double as DLQ reasons and metric labels.
const (
	ReasonRecordMissing = "record_missing"
	ReasonFieldMismatch = "field_mismatch"
	ReasonInvalidEvent  = "invalid_event"
	ReasonAuditError    = "audit_error"
)

// RecordSource loads committed ledger records. *ledger.Ledger satisfies it.
type RecordSource interface {
	ByDigest(ctx context.Context, digest string) (models.TransactionRecord, error)
}

// Verdict is the result of checking one event against the stored ledger.
type Verdict struct {
	Match  bool
	Reason string   // empty when Match
	Fields []string // mismatching fields for ReasonFieldMismatch
}

func (v Verdict) String() string {
	if v.Match {
		return "match"
	}
	if len(v.Fields) > 0 {
		return fmt.Sprintf("%s %v", v.Reason, v.Fields)
	}
	return v.Reason
}

// Auditor checks a published ledger event against the record of the same digest.
type Auditor interface {
	Audit(ctx context.Context, ev models.LedgerEvent) (Verdict, error)
}

type AuditorConfig struct {
	Logger  *zap.Logger
	Records RecordSource
	Retry   ledger.RetryPolicy
}

type auditor struct {
	AuditorConfig
}

func NewAuditor(cfg AuditorConfig) Auditor {
	return &auditor{AuditorConfig: cfg}
}

// Audit returns an error only when the record could not be read. A record that is absent or
// differs is a verdict, not an error.
func (a *auditor) Audit(ctx context.Context, ev models.LedgerEvent) (Verdict, error) {
	record, err := ledger.RetryTransient(ctx, a.Retry, a.Logger, func(ctx context.Context) (models.TransactionRecord, error) {
		return a.Records.ByDigest(ctx, ev.Digest)
	})
	if err != nil {
		if errors.Is(err, pkg.ErrRecordNotFound) {
			return Verdict{Reason: ReasonRecordMissing}, nil
		}
		return Verdict{}, err
	}

	if fields := diff(ev, record); len(fields) > 0 {
		return Verdict{Reason: ReasonFieldMismatch, Fields: fields}, nil
	}
	return Verdict{Match: true}, nil
}

// diff lists the event fields that disagree with record.
func diff(ev models.LedgerEvent, record models.TransactionRecord) []string {
	var fields []string
	if ev.TransactionID != record.ID.String() {
		fields = append(fields, "transactionId")
	}
	if ev.SenderNumber != record.SenderNumber {
		fields = append(fields, "senderAccount")
	}
	if ev.ReceiverNumber != record.ReceiverNumber {
		fields = append(fields, "receiverAccount")
	}
	if amount, err := decimal.NewFromString(ev.Amount); err != nil || !amount.Equal(record.Amount) {
		fields = append(fields, "amount")
	}
	if ev.Type != record.Type {
		fields = append(fields, "type")
	}
	if ev.Description != record.Description {
		fields = append(fields, "description")
	}
	deviceID := ""
	if record.DeviceID != nil {
		deviceID = record.DeviceID.String()
	}
	if ev.DeviceID != deviceID {
		fields = append(fields, "deviceId")
	}
	if !ev.Timestamp.Equal(record.Timestamp) {
		fields = append(fields, "timestamp")
	}
	return fields
}

package models

import (
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
)

// LedgerEvent is published once per committed transaction record and consumed by the audit worker.
type LedgerEvent struct {
	TransactionID  string              `json:"transactionId" validate:"required,uuid"`
	Digest         string              `json:"digest" validate:"required,len=64,hexadecimal"`
	SenderNumber   string              `json:"senderAccount" validate:"required"`
	ReceiverNumber string              `json:"receiverAccount" validate:"required"`
	Amount         string              `json:"amount" validate:"required"`
	Type           pkg.TransactionType `json:"type" validate:"required"`
	Description    string              `json:"description,omitempty"`
	DeviceID       string              `json:"deviceId,omitempty"`
	Timestamp      time.Time           `json:"timestamp" validate:"required"`
	TraceID        string              `json:"traceId,omitempty"`
}

// ToLedgerEvent builds the audit event for a committed record.
func (r TransactionRecord) ToLedgerEvent(traceID string) LedgerEvent {
	ev := LedgerEvent{
		TransactionID:  r.ID.String(),
		Digest:         r.Digest,
		SenderNumber:   r.SenderNumber,
		ReceiverNumber: r.ReceiverNumber,
		Amount:         r.Amount.StringFixed(2),
		Type:           r.Type,
		Description:    r.Description,
		Timestamp:      r.Timestamp,
		TraceID:        traceID,
	}
	if r.DeviceID != nil {
		ev.DeviceID = r.DeviceID.String()
	}
	return ev
}

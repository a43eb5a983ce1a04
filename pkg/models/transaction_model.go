package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/shopspring/decimal"
)

// TransactionRecord maps to table `transactions`. Rows are append-only.
type TransactionRecord struct {
	ID             uuid.UUID
	SenderID       uuid.UUID
	ReceiverID     uuid.UUID
	SenderNumber   string
	ReceiverNumber string
	Amount         decimal.Decimal
	Type           pkg.TransactionType
	Timestamp      time.Time
	Digest         string
	Description    string
	DeviceID       *uuid.UUID // originating device; nulled if the device row goes away
}

// MaxDescriptionLength is the longest description a record can carry, in characters.
const MaxDescriptionLength = 255

// TransactionFilter narrows a ledger query. Zero fields do not filter.
// AccountID matches either side of a record. From is inclusive, To exclusive.
type TransactionFilter struct {
	AccountID *uuid.UUID
	DeviceID  *uuid.UUID
	From      *time.Time
	To        *time.Time
	Limit     int
	// Stale lets the backend answer from a replica that may miss recent commits.
	// Only listings shown to people set it; decisions never do.
	Stale bool
}

// Matches reports whether r passes the filter, ignoring Limit.
func (f TransactionFilter) Matches(r TransactionRecord) bool {
	if f.AccountID != nil && r.SenderID != *f.AccountID && r.ReceiverID != *f.AccountID {
		return false
	}
	if f.DeviceID != nil && (r.DeviceID == nil || *r.DeviceID != *f.DeviceID) {
		return false
	}
	if f.From != nil && r.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && !r.Timestamp.Before(*f.To) {
		return false
	}
	return true
}

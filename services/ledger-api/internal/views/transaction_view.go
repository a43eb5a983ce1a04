package views

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
)

// TransferRequest moves money from the caller's account to ToAccount.
type TransferRequest struct {
	ToAccount   string          `json:"toAccount" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"max=255"`
}

const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"
)

type TransactionView struct {
	ID              uuid.UUID `json:"id"`
	Digest          string    `json:"digest"`
	SenderAccount   string    `json:"senderAccount"`
	ReceiverAccount string    `json:"receiverAccount"`
	Amount          string    `json:"amount"`
	Type            string    `json:"type"`
	Description     string    `json:"description"`
	Direction       string    `json:"direction,omitempty"`
	DeviceID        *string   `json:"deviceId,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewTransactionView renders r from the point of view of account (uuid.Nil for no direction).
func NewTransactionView(r models.TransactionRecord, account uuid.UUID) TransactionView {
	v := TransactionView{
		ID:              r.ID,
		Digest:          r.Digest,
		SenderAccount:   r.SenderNumber,
		ReceiverAccount: r.ReceiverNumber,
		Amount:          r.Amount.StringFixed(2),
		Type:            string(r.Type),
		Description:     r.Description,
		Timestamp:       r.Timestamp,
	}
	switch account {
	case r.SenderID:
		v.Direction = DirectionDebit
	case r.ReceiverID:
		v.Direction = DirectionCredit
	}
	if r.DeviceID != nil {
		id := r.DeviceID.String()
		v.DeviceID = &id
	}
	return v
}

// HistoryQuery bounds are RFC 3339; From is inclusive, To exclusive.
type HistoryQuery struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

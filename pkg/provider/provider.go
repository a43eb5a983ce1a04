// Package provider talks to the external banking-as-a-service provider that holds the real
// money behind ledger accounts. The ledger core never calls it; only the API layer does.
package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrProviderUnavailable = errors.New("banking provider unavailable")

type AccountResult struct {
	ProviderAccountID string `json:"provider_account_id"`
	Status            string `json:"status"`
	AccountNumber     string `json:"account_number"`
	Branch            string `json:"branch"`
}

type TransferResult struct {
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
}

type PixKeyResult struct {
	Key    string `json:"key"`
	Type   string `json:"type"`
	QRCode string `json:"qr_code"`
}

// Provider is the capability set every provider adapter implements.
type Provider interface {
	CreateAccount(ctx context.Context, name, taxID string) (AccountResult, error)
	GetBalance(ctx context.Context, providerAccountID string) (decimal.Decimal, error)
	Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal) (TransferResult, error)
	GeneratePixKey(ctx context.Context, providerAccountID string) (PixKeyResult, error)
}

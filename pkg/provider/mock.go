package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockBalance is what Mock reports for accounts without an explicit balance.
var MockBalance = decimal.RequireFromString("1000.00")

// Mock is an in-process provider for development and tests.
type Mock struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func NewMock() *Mock {
	return &Mock{balances: make(map[string]decimal.Decimal)}
}

var _ Provider = (*Mock)(nil)

func (m *Mock) CreateAccount(_ context.Context, _, _ string) (AccountResult, error) {
	return AccountResult{
		ProviderAccountID: "mock-" + uuid.NewString(),
		Status:            "active",
		AccountNumber:     fmt.Sprintf("%06d", 100000+rand.IntN(900000)),
		Branch:            "0001",
	}, nil
}

func (m *Mock) GetBalance(_ context.Context, providerAccountID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[providerAccountID]; ok {
		return b, nil
	}
	return MockBalance, nil
}

// SetBalance overrides the balance GetBalance reports for one account.
func (m *Mock) SetBalance(providerAccountID string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[providerAccountID] = balance
}

func (m *Mock) Transfer(_ context.Context, _, _ string, amount decimal.Decimal) (TransferResult, error) {
	return TransferResult{
		TransactionID: "tx-" + uuid.NewString(),
		Status:        "success",
		Amount:        amount,
		Fee:           decimal.Zero,
	}, nil
}

func (m *Mock) GeneratePixKey(_ context.Context, _ string) (PixKeyResult, error) {
	return PixKeyResult{Key: uuid.NewString(), Type: "random", QRCode: "mock-qr-code-data"}, nil
}

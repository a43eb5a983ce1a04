package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account maps to table `accounts`
type Account struct {
	ID                uuid.UUID
	AccountNumber     string // external, immutable
	PrincipalID       string // owning principal, one account each
	ProviderAccountID *string
	Balance           decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PixKey maps to table `pix_keys`
type PixKey struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	KeyType   string
	KeyValue  string
	CreatedAt time.Time
}

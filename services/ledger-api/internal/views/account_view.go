package views

import (
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

type AccountView struct {
	AccountNumber     string    `json:"accountNumber"`
	Balance           string    `json:"balance"`
	ProviderAccountID string    `json:"providerAccountId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func NewAccountView(a models.Account) AccountView {
	v := AccountView{
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance.StringFixed(2),
		CreatedAt:     a.CreatedAt,
	}
	if a.ProviderAccountID != nil {
		v.ProviderAccountID = *a.ProviderAccountID
	}
	return v
}

type ReconciliationView struct {
	AccountNumber   string `json:"accountNumber"`
	LedgerBalance   string `json:"ledgerBalance"`
	ProviderBalance string `json:"providerBalance"`
	Difference      string `json:"difference"`
	InSync          bool   `json:"inSync"`
}

type PixKeyView struct {
	KeyType   string    `json:"keyType"`
	KeyValue  string    `json:"keyValue"`
	QRCode    string    `json:"qrCode,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewPixKeyView(k models.PixKey) PixKeyView {
	return PixKeyView{KeyType: k.KeyType, KeyValue: k.KeyValue, CreatedAt: k.CreatedAt}
}

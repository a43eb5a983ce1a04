package views

import (
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/shopspring/decimal"
)

type RegisterDeviceRequest struct {
	DeviceID string `json:"deviceId" binding:"required,max=100"`
	Name     string `json:"name" binding:"required,max=255"`
	Location string `json:"location" binding:"max=255"`
}

type DeviceView struct {
	DeviceID  string    `json:"deviceId"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewDeviceView(d models.Device) DeviceView {
	return DeviceView{
		DeviceID:  d.DeviceID,
		Name:      d.Name,
		Location:  d.Location,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// DeviceCredentialView carries a plaintext credential. It is only ever returned once.
type DeviceCredentialView struct {
	DeviceView
	Credential string `json:"credential"`
}

type DeviceUsageView struct {
	DeviceID    string    `json:"deviceId"`
	Used        string    `json:"used"`
	Limit       string    `json:"limit"`
	Remaining   string    `json:"remaining"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
}

type DevicePaymentRequest struct {
	ToAccount   string          `json:"toAccount" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"max=200"`
}

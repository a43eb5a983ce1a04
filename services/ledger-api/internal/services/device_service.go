package services

import (
	"context"
	"fmt"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DeviceService manages IoT devices for their owner and executes payments devices initiate.
type DeviceService interface {
	Register(ctx context.Context, principalID string, req views.RegisterDeviceRequest) (models.Device, string, error)
	List(ctx context.Context, principalID string) ([]models.Device, error)
	Rotate(ctx context.Context, principalID, deviceID string) (models.Device, string, error)
	Deactivate(ctx context.Context, principalID, deviceID string) (models.Device, error)
	Usage(ctx context.Context, principalID, deviceID string) (views.DeviceUsageView, error)
	// Pay authenticates the device, applies the rate and daily limits and transfers from the
	// owner's account.
	Pay(ctx context.Context, deviceID, credential string, req views.DevicePaymentRequest) (models.TransactionRecord, error)
}

type DeviceServiceConfig struct {
	Logger    *zap.Logger
	Core      *ledger.Core
	Transfers TransferService
	Limiter   *pkg.DistributedLimiter // nil disables per-device rate limiting
}

type DeviceServiceImpl struct {
	DeviceServiceConfig
}

func NewDeviceService(cfg DeviceServiceConfig) DeviceService {
	return &DeviceServiceImpl{DeviceServiceConfig: cfg}
}

func (s *DeviceServiceImpl) Register(ctx context.Context, principalID string, req views.RegisterDeviceRequest) (models.Device, string, error) {
	owner, err := s.Core.Accounts.ByPrincipal(ctx, principalID)
	if err != nil {
		return models.Device{}, "", err
	}
	return s.Core.Devices.Register(ctx, owner.ID, req.DeviceID, req.Name, req.Location)
}

func (s *DeviceServiceImpl) List(ctx context.Context, principalID string) ([]models.Device, error) {
	owner, err := s.Core.Accounts.ByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return s.Core.Devices.ListByOwner(ctx, owner.ID)
}

func (s *DeviceServiceImpl) Rotate(ctx context.Context, principalID, deviceID string) (models.Device, string, error) {
	device, err := s.owned(ctx, principalID, deviceID)
	if err != nil {
		return models.Device{}, "", err
	}
	credential, err := s.Core.Devices.RotateCredential(ctx, device.DeviceID)
	if err != nil {
		return models.Device{}, "", err
	}
	return device, credential, nil
}

func (s *DeviceServiceImpl) Deactivate(ctx context.Context, principalID, deviceID string) (models.Device, error) {
	if _, err := s.owned(ctx, principalID, deviceID); err != nil {
		return models.Device{}, err
	}
	return s.Core.Devices.Deactivate(ctx, deviceID)
}

func (s *DeviceServiceImpl) Usage(ctx context.Context, principalID, deviceID string) (views.DeviceUsageView, error) {
	device, err := s.owned(ctx, principalID, deviceID)
	if err != nil {
		return views.DeviceUsageView{}, err
	}
	used, err := s.Core.Rules.UsedToday(ctx, device)
	if err != nil {
		return views.DeviceUsageView{}, err
	}
	limit := s.Core.Rules.Limit()
	remaining := limit.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero // concurrent payments can overshoot
	}
	start, end := s.Core.Rules.Window()
	return views.DeviceUsageView{
		DeviceID:    device.DeviceID,
		Used:        used.StringFixed(2),
		Limit:       limit.StringFixed(2),
		Remaining:   remaining.StringFixed(2),
		WindowStart: start,
		WindowEnd:   end,
	}, nil
}

func (s *DeviceServiceImpl) Pay(ctx context.Context, deviceID, credential string, req views.DevicePaymentRequest) (models.TransactionRecord, error) {
	device, err := s.Core.Devices.Authenticate(ctx, deviceID, credential)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	if s.Limiter != nil && !s.Limiter.Allow(ctx, device.DeviceID) {
		return models.TransactionRecord{}, pkg.NewAppError(pkg.ErrRateLimitedCode,
			fmt.Sprintf("device %s is sending payments too fast", device.DeviceID), pkg.ErrRateLimitExceeded)
	}

	allowed, reason, err := s.Core.Rules.CheckDailyLimit(ctx, device, req.Amount)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	if !allowed {
		s.Logger.Warn("device_payment_denied",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.String(pkg.DeviceId, device.DeviceID),
			zap.String("reason", reason))
		return models.TransactionRecord{}, pkg.DailyLimitExceeded(reason)
	}

	owner, err := s.Core.Accounts.ByID(ctx, *device.OwnerAccountID)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	deviceRef := device.ID
	return s.Transfers.Execute(ctx, ledger.TransferRequest{
		SenderAccount:   owner.AccountNumber,
		ReceiverAccount: req.ToAccount,
		Amount:          req.Amount,
		Description:     paymentDescription(device.Name, req.Description),
		Type:            pkg.TransactionTypePayment,
		DeviceID:        &deviceRef,
	})
}

// paymentDescription labels a device payment with the device name, cut to what a record holds.
func paymentDescription(deviceName, description string) string {
	d := []rune(fmt.Sprintf("[IoT] %s: %s", deviceName, description))
	if len(d) > models.MaxDescriptionLength {
		d = d[:models.MaxDescriptionLength]
	}
	return string(d)
}

// owned loads a device and checks it belongs to the principal's account. Devices of other
// accounts look the same as unknown ones.
func (s *DeviceServiceImpl) owned(ctx context.Context, principalID, deviceID string) (models.Device, error) {
	owner, err := s.Core.Accounts.ByPrincipal(ctx, principalID)
	if err != nil {
		return models.Device{}, err
	}
	device, err := s.Core.Devices.Get(ctx, deviceID)
	if err != nil {
		return models.Device{}, err
	}
	if device.OwnerAccountID == nil || *device.OwnerAccountID != owner.ID {
		return models.Device{}, pkg.DeviceNotFound(deviceID)
	}
	return device, nil
}

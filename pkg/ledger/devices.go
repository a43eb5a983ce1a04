package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"go.uber.org/zap"
)

// credentialBytes is the entropy of a device credential before hex encoding.
const credentialBytes = 32

// DeviceAuthenticator registers devices and checks their credentials.
// Only credential hashes are stored.
type DeviceAuthenticator struct {
	store  Store
	logger *zap.Logger
	clock  Clock
}

func NewDeviceAuthenticator(store Store, logger *zap.Logger, clock Clock) *DeviceAuthenticator {
	return &DeviceAuthenticator{store: store, logger: logger, clock: clock}
}

// Authenticate returns the device if credential is valid for it. An unknown id fails with
// pkg.ErrDeviceNotFound. Inactive, unlinked, orphaned and wrong-credential cases all fail
// with the same pkg.ErrDeviceUnauthorized.
func (d *DeviceAuthenticator) Authenticate(ctx context.Context, deviceID, credential string) (models.Device, error) {
	var device models.Device
	err := d.store.View(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.FindDevice(ctx, deviceID)
		if err != nil {
			return notFoundAs(err, pkg.DeviceNotFound(deviceID))
		}
		if !found.CanTransact() || !utils.SecretMatchesHash(credential, found.CredentialHash) {
			return pkg.DeviceUnauthorized()
		}
		if _, err := tx.FindAccountByID(ctx, *found.OwnerAccountID); err != nil {
			return notFoundAs(err, pkg.DeviceUnauthorized())
		}
		device = found
		return nil
	})
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, pkg.ErrDeviceNotFound):
			reason = "not_found"
		case errors.Is(err, pkg.ErrDeviceUnauthorized):
			reason = "unauthorized"
		}
		deviceDenials.WithLabelValues(reason).Inc()
		d.logger.Warn("device_authentication_failed",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.String(pkg.DeviceId, deviceID),
			zap.String("reason", reason))
		return models.Device{}, err
	}
	return device, nil
}

// Register links a new active device to an account and returns it with its credential.
// The credential is not retrievable afterwards.
func (d *DeviceAuthenticator) Register(ctx context.Context, ownerAccountID uuid.UUID, deviceID, name, location string) (models.Device, string, error) {
	if utils.IsEmpty(deviceID) || utils.IsEmpty(name) {
		return models.Device{}, "", pkg.NewAppError(pkg.ErrInvalidInputCode, "device id and name are required", nil)
	}
	credential, err := utils.GenerateSecret(credentialBytes)
	if err != nil {
		return models.Device{}, "", err
	}
	now := d.clock()
	owner := ownerAccountID
	device := models.Device{
		ID:             uuid.New(),
		DeviceID:       deviceID,
		Name:           name,
		Location:       location,
		CredentialHash: utils.HashSecret(credential),
		OwnerAccountID: &owner,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = d.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.FindAccountByID(ctx, ownerAccountID); err != nil {
			return notFoundAs(err, pkg.AccountNotFound(ownerAccountID.String()))
		}
		inserted, err := tx.InsertDevice(ctx, device)
		if err != nil {
			return err
		}
		if !inserted {
			return pkg.NewAppError(pkg.ErrSQLDuplicateCode, "device id already registered", nil)
		}
		return nil
	})
	if err != nil {
		return models.Device{}, "", err
	}
	d.logger.Info("device_registered",
		zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
		zap.String(pkg.DeviceId, deviceID))
	return device, credential, nil
}

// RotateCredential replaces the device credential. The old one stops working when the unit commits.
func (d *DeviceAuthenticator) RotateCredential(ctx context.Context, deviceID string) (string, error) {
	credential, err := utils.GenerateSecret(credentialBytes)
	if err != nil {
		return "", err
	}
	err = d.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		device, err := tx.FindDevice(ctx, deviceID)
		if err != nil {
			return notFoundAs(err, pkg.DeviceNotFound(deviceID))
		}
		return tx.UpdateDeviceCredential(ctx, device.ID, utils.HashSecret(credential), d.clock())
	})
	if err != nil {
		return "", err
	}
	d.logger.Info("device_credential_rotated",
		zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
		zap.String(pkg.DeviceId, deviceID))
	return credential, nil
}

// Deactivate marks the device inactive. Past ledger records keep their device reference.
func (d *DeviceAuthenticator) Deactivate(ctx context.Context, deviceID string) (models.Device, error) {
	var device models.Device
	err := d.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.FindDevice(ctx, deviceID)
		if err != nil {
			return notFoundAs(err, pkg.DeviceNotFound(deviceID))
		}
		now := d.clock()
		if err := tx.SetDeviceActive(ctx, found.ID, false, now); err != nil {
			return err
		}
		found.Active = false
		found.UpdatedAt = now
		device = found
		return nil
	})
	return device, err
}

// Get loads a device by its external id.
func (d *DeviceAuthenticator) Get(ctx context.Context, deviceID string) (models.Device, error) {
	var device models.Device
	err := d.store.View(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.FindDevice(ctx, deviceID)
		if err != nil {
			return notFoundAs(err, pkg.DeviceNotFound(deviceID))
		}
		device = found
		return nil
	})
	return device, err
}

func (d *DeviceAuthenticator) ListByOwner(ctx context.Context, ownerAccountID uuid.UUID) ([]models.Device, error) {
	var devices []models.Device
	err := d.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		devices, err = tx.ListDevicesByOwner(ctx, ownerAccountID)
		return err
	})
	return devices, err
}

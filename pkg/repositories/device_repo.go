package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

const deviceColumns = `id, device_id, name, location, credential_hash, owner_account_id, is_active, created_at, updated_at`

type DeviceRepository interface {
	// Create inserts the device; false when the device id is taken.
	Create(ctx context.Context, tx pgx.Tx, device models.Device) (bool, error)
	FindByDeviceID(ctx context.Context, tx pgx.Tx, deviceID string) (models.Device, error)
	FindByOwner(ctx context.Context, tx pgx.Tx, ownerAccountID uuid.UUID) ([]models.Device, error)
	UpdateCredential(ctx context.Context, tx pgx.Tx, id uuid.UUID, credentialHash string, at time.Time) error
	UpdateActive(ctx context.Context, tx pgx.Tx, id uuid.UUID, active bool, at time.Time) error
}

type DeviceRepositoryImpl struct {
}

func NewDeviceRepository() DeviceRepository {
	return &DeviceRepositoryImpl{}
}

func (d DeviceRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, device models.Device) (bool, error) {
	tag, err := tx.Exec(ctx, `INSERT INTO devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device_id) DO NOTHING`,
		device.ID, device.DeviceID, device.Name, device.Location, device.CredentialHash,
		device.OwnerAccountID, device.Active, device.CreatedAt, device.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (d DeviceRepositoryImpl) FindByDeviceID(ctx context.Context, tx pgx.Tx, deviceID string) (models.Device, error) {
	return scanDevice(tx.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID))
}

func (d DeviceRepositoryImpl) FindByOwner(ctx context.Context, tx pgx.Tx, ownerAccountID uuid.UUID) ([]models.Device, error) {
	rows, err := tx.Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE owner_account_id = $1 ORDER BY created_at`, ownerAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]models.Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (d DeviceRepositoryImpl) UpdateCredential(ctx context.Context, tx pgx.Tx, id uuid.UUID, credentialHash string, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE devices SET credential_hash = $1, updated_at = $2 WHERE id = $3`, credentialHash, at, id)
	return err
}

func (d DeviceRepositoryImpl) UpdateActive(ctx context.Context, tx pgx.Tx, id uuid.UUID, active bool, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE devices SET is_active = $1, updated_at = $2 WHERE id = $3`, active, at, id)
	return err
}

func scanDevice(row pgx.Row) (models.Device, error) {
	var device models.Device
	err := row.Scan(&device.ID, &device.DeviceID, &device.Name, &device.Location, &device.CredentialHash,
		&device.OwnerAccountID, &device.Active, &device.CreatedAt, &device.UpdatedAt)
	return device, err
}

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	upsertDeviceSQL = `INSERT INTO devices (
        serial,
        product_family,
        device_model,
        product_type,
        storage_capacity,
        color,
        status,
        purchase_date,
        added_at,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$9
    )
    ON CONFLICT (serial) DO UPDATE
    SET
        product_family   = EXCLUDED.product_family,
        device_model     = EXCLUDED.device_model,
        product_type     = EXCLUDED.product_type,
        storage_capacity = EXCLUDED.storage_capacity,
        color            = EXCLUDED.color,
        status           = EXCLUDED.status,
        purchase_date    = EXCLUDED.purchase_date,
        updated_at       = EXCLUDED.updated_at;`

	deviceColumns = `serial,
        product_family,
        device_model,
        product_type,
        storage_capacity,
        color,
        status,
        purchase_date,
        added_at,
        updated_at`

	getDeviceSQL = `SELECT ` + deviceColumns + `
    FROM devices
    WHERE serial = $1;`

	listDevicesSQL = `SELECT ` + deviceColumns + `
    FROM devices
    ORDER BY serial;`

	countDevicesSQL = `SELECT COUNT(*) FROM devices;`
)

// UpsertDevice refreshes one device snapshot, keyed by serial. added_at
// is preserved on conflict, updated_at moves forward.
func (s *Store) UpsertDevice(ctx context.Context, device DeviceRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertDeviceSQL,
		device.Serial,
		device.ProductFamily,
		device.DeviceModel,
		device.ProductType,
		device.Storage,
		device.Color,
		device.Status,
		device.PurchaseDate,
		device.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert device: %w", execErr)
	}
	return nil
}

// GetDevice returns one device snapshot or nil when unknown.
func (s *Store) GetDevice(ctx context.Context, serial string) (*DeviceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getDeviceSQL, serial)
	if queryErr != nil {
		return nil, fmt.Errorf("get device: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}
	device, scanErr := scanDevice(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &device, nil
}

// ListDevices returns all device snapshots ordered by serial.
func (s *Store) ListDevices(ctx context.Context) ([]DeviceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDevicesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list devices: %w", queryErr)
	}
	defer rows.Close()

	devices := make([]DeviceRecord, 0)
	for rows.Next() {
		device, scanErr := scanDevice(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		devices = append(devices, device)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return devices, nil
}

// CountDevices returns the size of the tracked fleet.
func (s *Store) CountDevices(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var count int64
	if scanErr := pool.QueryRow(ctx, countDevicesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count devices: %w", scanErr)
	}
	return count, nil
}

func scanDevice(rows pgx.Rows) (DeviceRecord, error) {
	var device DeviceRecord
	if err := rows.Scan(
		&device.Serial,
		&device.ProductFamily,
		&device.DeviceModel,
		&device.ProductType,
		&device.Storage,
		&device.Color,
		&device.Status,
		&device.PurchaseDate,
		&device.AddedAt,
		&device.UpdatedAt,
	); err != nil {
		return DeviceRecord{}, err
	}
	return device, nil
}

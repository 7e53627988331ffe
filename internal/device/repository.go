package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device's name and location.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by ID. Alarm rows referencing it cascade at
	// the schema level. Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateStatus updates only the status and last-update fields.
	// This is optimised for the inbound message hot path.
	UpdateStatus(ctx context.Context, id string, status Status, lastUpdate time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, location, status, last_update, created_at, updated_at
		FROM devices
		WHERE id = ?`, id)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, location, status, last_update, created_at, updated_at
		FROM devices
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, location, status, last_update, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		device.ID, device.Name, device.Location, string(device.Status),
		nullableTime(device.LastUpdate), device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing device's mutable fields.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET name = ?, location = ?, updated_at = ?
		WHERE id = ?`,
		device.Name, device.Location, device.UpdatedAt, device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRowAffected(result)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRowAffected(result)
}

// UpdateStatus updates only the status and last-update fields.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, lastUpdate time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET status = ?, last_update = ?, updated_at = ?
		WHERE id = ?`,
		string(status), lastUpdate, lastUpdate, id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireRowAffected(result)
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice reads one device row.
func scanDevice(row scanner) (*Device, error) {
	var (
		d          Device
		status     string
		lastUpdate sql.NullTime
	)

	if err := row.Scan(&d.ID, &d.Name, &d.Location, &status,
		&lastUpdate, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}

	d.Status = Status(status)
	if lastUpdate.Valid {
		ts := lastUpdate.Time
		d.LastUpdate = &ts
	}
	return &d, nil
}

// nullableTime converts *time.Time to a driver-friendly value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// requireRowAffected maps zero-row updates/deletes to ErrDeviceNotFound.
func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// isUniqueViolation detects a primary-key conflict without depending on the
// driver's error type.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package alarm

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository defines the interface for alarm persistence operations.
type Repository interface {
	// List retrieves all alarms ordered newest first.
	List(ctx context.Context) ([]Alarm, error)

	// Create inserts a new alarm entry.
	Create(ctx context.Context, alarm *Alarm) error

	// SetAcknowledged marks one alarm as acknowledged.
	// Returns ErrAlarmNotFound if the alarm does not exist.
	SetAcknowledged(ctx context.Context, id string) error

	// AcknowledgeByDevice marks every unacknowledged alarm for a device.
	// Returns the number of rows changed.
	AcknowledgeByDevice(ctx context.Context, deviceID string) (int, error)

	// DeleteByDevice removes all alarms belonging to a device.
	DeleteByDevice(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all alarms ordered newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Alarm, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, device_name, message, created_at, acknowledged
		FROM alarms
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing alarms: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var alarms []Alarm
	for rows.Next() {
		var (
			a     Alarm
			acked int
		)
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.DeviceName,
			&a.Message, &a.CreatedAt, &acked); err != nil {
			return nil, fmt.Errorf("scanning alarm row: %w", err)
		}
		a.Acknowledged = acked != 0
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}

// Create inserts a new alarm entry.
func (r *SQLiteRepository) Create(ctx context.Context, alarm *Alarm) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alarms (id, device_id, device_name, message, created_at, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?)`,
		alarm.ID, alarm.DeviceID, alarm.DeviceName, alarm.Message,
		alarm.CreatedAt, boolToInt(alarm.Acknowledged),
	)
	if err != nil {
		return fmt.Errorf("inserting alarm: %w", err)
	}
	return nil
}

// SetAcknowledged marks one alarm as acknowledged.
func (r *SQLiteRepository) SetAcknowledged(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alarms SET acknowledged = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("acknowledging alarm: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlarmNotFound
	}
	return nil
}

// AcknowledgeByDevice marks every unacknowledged alarm for a device.
func (r *SQLiteRepository) AcknowledgeByDevice(ctx context.Context, deviceID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alarms SET acknowledged = 1 WHERE device_id = ? AND acknowledged = 0", deviceID)
	if err != nil {
		return 0, fmt.Errorf("acknowledging device alarms: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteByDevice removes all alarms belonging to a device.
func (r *SQLiteRepository) DeleteByDevice(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM alarms WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting device alarms: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

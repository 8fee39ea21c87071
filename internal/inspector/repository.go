package inspector

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Device is one registered device row.
type Device struct {
	DeviceID   string
	DeviceName string
}

// ActivityStore reads device activity from the measurement store.
type ActivityStore interface {
	ListDevices(ctx context.Context) ([]Device, error)
	LatestMeasurement(ctx context.Context, deviceID string) (time.Time, bool, error)
}

// ActivityRepository implements ActivityStore against the flexible
// measurement database.
type ActivityRepository struct {
	db *sql.DB
}

var _ ActivityStore = (*ActivityRepository)(nil)

// NewActivityRepository creates the repository.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// ListDevices returns all registered devices.
func (r *ActivityRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, device_name FROM devices
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		var name sql.NullString
		if err := rows.Scan(&d.DeviceID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		d.DeviceName = name.String
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

// LatestMeasurement returns the most recent measurement time across
// all of the device's sensors, reporting false when the device has
// never sent data.
func (r *ActivityRepository) LatestMeasurement(ctx context.Context, deviceID string) (time.Time, bool, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(m.time)
		FROM sensors s
		JOIN measurements m ON m.sensor_id = s.sensor_id
		WHERE s.device_id = $1
	`, deviceID).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest measurement for %s: %w", deviceID, err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time, true, nil
}

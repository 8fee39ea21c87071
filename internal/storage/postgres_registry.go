package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// postgresRegistry implements the device/sensor registration half of
// the Sink contract against PostgreSQL. Both concrete sinks embed it;
// they differ only in how measurements are laid out.
type postgresRegistry struct {
	db     *sql.DB
	name   string
	logger *zap.Logger
}

// EnsureDevice upserts the device row.
func (r *postgresRegistry) EnsureDevice(ctx context.Context, deviceID, name, location, firmware string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, device_name, location, firmware_version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id)
		DO UPDATE SET
			device_name = EXCLUDED.device_name,
			location = EXCLUDED.location,
			firmware_version = EXCLUDED.firmware_version
	`, deviceID, name, location, firmware)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", deviceID, err)
	}

	r.logger.Info("Device registered",
		zap.String("sink", r.name),
		zap.String("device_id", deviceID),
		zap.String("device_name", name),
		zap.String("firmware_version", firmware),
		zap.String("location", location),
	)
	return nil
}

// EnsureSensor creates the sensor row if absent and returns its id.
// Sensor rows are immutable after creation: the identity cache never
// invalidates, so an existing row must keep its id and metadata.
func (r *postgresRegistry) EnsureSensor(ctx context.Context, deviceID, kind string, metadata json.RawMessage) (int64, error) {
	if id, ok, err := r.LookupSensor(ctx, deviceID, kind); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}

	location := sensorLocation(metadata)

	var metaParam interface{}
	if len(metadata) > 0 {
		metaParam = string(metadata)
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sensors (device_id, sensor_type, location, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id, sensor_type) DO NOTHING
		RETURNING sensor_id
	`, deviceID, kind, location, metaParam).Scan(&id)

	if err == sql.ErrNoRows {
		// Lost a create race; the row now exists.
		id, ok, err := r.LookupSensor(ctx, deviceID, kind)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("sensor %s/%s vanished after insert conflict", deviceID, kind)
		}
		return id, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create sensor %s/%s: %w", deviceID, kind, err)
	}

	r.logger.Info("Created new sensor",
		zap.String("sink", r.name),
		zap.String("device_id", deviceID),
		zap.String("sensor_type", kind),
		zap.Int64("sensor_id", id),
	)
	return id, nil
}

// LookupSensor resolves (device, kind) to the sensor id.
func (r *postgresRegistry) LookupSensor(ctx context.Context, deviceID, kind string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT sensor_id FROM sensors
		WHERE device_id = $1 AND sensor_type = $2
	`, deviceID, kind).Scan(&id)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query sensor %s/%s: %w", deviceID, kind, err)
	}
	return id, true, nil
}

// Close closes the connection pool.
func (r *postgresRegistry) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// sensorLocation extracts the location field from the opaque metadata
// block, defaulting to "unknown" when omitted.
func sensorLocation(metadata json.RawMessage) string {
	if len(metadata) == 0 {
		return "unknown"
	}
	var m struct {
		Location string `json:"location"`
	}
	if err := json.Unmarshal(metadata, &m); err != nil || m.Location == "" {
		return "unknown"
	}
	return m.Location
}

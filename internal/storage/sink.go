package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Sink is one storage backend for telemetry. Multiple sinks run in
// parallel; each is independently fallible and a failure in one must
// never affect delivery to another.
//
// EnsureDevice and EnsureSensor are idempotent: re-registering with
// identical arguments must not create duplicates and must not fail.
// AppendMeasurement is at-least-once.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// EnsureDevice upserts the device row (last writer wins on
	// name/location/firmware).
	EnsureDevice(ctx context.Context, deviceID, name, location, firmware string) error

	// EnsureSensor creates the sensor row if absent and returns its
	// store-assigned id. An existing row is never updated.
	EnsureSensor(ctx context.Context, deviceID, kind string, metadata json.RawMessage) (int64, error)

	// LookupSensor resolves (device, kind) to the sensor id, reporting
	// whether the row exists.
	LookupSensor(ctx context.Context, deviceID, kind string) (int64, bool, error)

	// AppendMeasurement stores one (time, sensor, metric, value) fact.
	AppendMeasurement(ctx context.Context, sensorID int64, t time.Time, metric string, value float64) error

	// Close releases the sink's connection pool.
	Close() error
}

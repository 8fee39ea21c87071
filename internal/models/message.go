package models

import (
	"encoding/json"
	"math"
	"time"
)

// EpochTime is a device-supplied timestamp: epoch seconds, possibly
// fractional. Devices with unsynchronized clocks send garbage here, so
// anything non-numeric is treated as absent rather than failing the
// whole payload.
type EpochTime struct {
	t     time.Time
	valid bool
}

// UnmarshalJSON accepts a numeric epoch value; null, strings or other
// shapes leave the timestamp unset.
func (e *EpochTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return nil
	}
	sec, frac := math.Modf(f)
	e.t = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	e.valid = true
	return nil
}

// Or returns the device timestamp, or fallback when it was absent or
// unparseable.
func (e EpochTime) Or(fallback time.Time) time.Time {
	if e.valid {
		return e.t
	}
	return fallback.UTC()
}

// Valid reports whether the device supplied a usable timestamp.
func (e EpochTime) Valid() bool {
	return e.valid
}

// CapabilitiesPayload is the device self-announcement published to
// devices/{device}/capabilities.
type CapabilitiesPayload struct {
	DeviceName      string                     `json:"device_name"`
	FirmwareVersion string                     `json:"firmware_version"`
	DeviceLocation  string                     `json:"device_location"`
	Sensors         []string                   `json:"sensors"`
	Metadata        map[string]json.RawMessage `json:"metadata"`
}

// SensorMeta carries the per-kind metadata block. Only location is
// interpreted by the collector; the rest is stored opaque.
func (p *CapabilitiesPayload) SensorMeta(kind string) json.RawMessage {
	if p.Metadata == nil {
		return nil
	}
	return p.Metadata[kind]
}

// MetricValue wraps one metric reading. Extra attributes (units,
// calibration flags) may ride along; only the reading is persisted.
type MetricValue struct {
	Reading *float64 `json:"reading"`
}

// SensorDataPayload is one reading published to
// devices/{device}/sensors/{kind}/data.
type SensorDataPayload struct {
	Timestamp EpochTime              `json:"timestamp"`
	Value     map[string]MetricValue `json:"value"`
}

// StatusPayload is published to devices/{device}/status.
type StatusPayload struct {
	Timestamp EpochTime `json:"timestamp"`
	Value     string    `json:"value"`
}

// ErrorDetail is the body of a device error report.
type ErrorDetail struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Severity  int    `json:"severity"`
}

// ErrorPayload is published to devices/{device}/error.
type ErrorPayload struct {
	Timestamp EpochTime   `json:"timestamp"`
	Value     ErrorDetail `json:"value"`
}

package consumer

import (
	"encoding/json"
	"strings"

	"ambient-collector/internal/models"
)

// Event is the closed set of messages the collector dispatches on.
// The router produces exactly one Event per raw message; anything it
// cannot classify becomes an UnrecognizedEvent, which the dispatcher
// drops with a warning.
type Event interface {
	event()
}

// CapabilitiesEvent is a device self-announcement.
type CapabilitiesEvent struct {
	DeviceID string
	Payload  models.CapabilitiesPayload
}

// SensorDataEvent is one sensor reading.
type SensorDataEvent struct {
	DeviceID   string
	SensorKind string
	Payload    models.SensorDataPayload
}

// StatusEvent is a device status report.
type StatusEvent struct {
	DeviceID string
	Payload  models.StatusPayload
}

// ErrorEvent is a device error report.
type ErrorEvent struct {
	DeviceID string
	Payload  models.ErrorPayload
}

// UnrecognizedEvent marks a message that failed classification.
type UnrecognizedEvent struct {
	Topic  string
	Reason string
}

func (CapabilitiesEvent) event() {}
func (SensorDataEvent) event()   {}
func (StatusEvent) event()       {}
func (ErrorEvent) event()        {}
func (UnrecognizedEvent) event() {}

// Classify decodes a (topic, payload) pair into an Event. The topic
// contract is devices/{device}/{kind}[/{sensor}/data]; classification
// never returns an error so one bad message can never halt routing.
func Classify(topic string, payload []byte) Event {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return UnrecognizedEvent{Topic: topic, Reason: "topic has fewer than three segments"}
	}
	if parts[0] != "devices" {
		return UnrecognizedEvent{Topic: topic, Reason: "topic outside the devices namespace"}
	}

	deviceID := parts[1]

	switch parts[2] {
	case "capabilities":
		var p models.CapabilitiesPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return UnrecognizedEvent{Topic: topic, Reason: "invalid capabilities payload: " + err.Error()}
		}
		return CapabilitiesEvent{DeviceID: deviceID, Payload: p}

	case "sensors":
		// devices/{device}/sensors/{kind}/data
		if len(parts) < 5 || parts[4] != "data" {
			return UnrecognizedEvent{Topic: topic, Reason: "malformed sensor data topic"}
		}
		var p models.SensorDataPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return UnrecognizedEvent{Topic: topic, Reason: "invalid sensor data payload: " + err.Error()}
		}
		return SensorDataEvent{DeviceID: deviceID, SensorKind: parts[3], Payload: p}

	case "status":
		var p models.StatusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return UnrecognizedEvent{Topic: topic, Reason: "invalid status payload: " + err.Error()}
		}
		return StatusEvent{DeviceID: deviceID, Payload: p}

	case "error":
		var p models.ErrorPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return UnrecognizedEvent{Topic: topic, Reason: "invalid error payload: " + err.Error()}
		}
		return ErrorEvent{DeviceID: deviceID, Payload: p}

	default:
		return UnrecognizedEvent{Topic: topic, Reason: "unknown message kind: " + parts[2]}
	}
}

package consumer

import (
	"context"
	"time"

	rediscommon "ambient-collector/internal/redis"
	"ambient-collector/internal/storage"

	"go.uber.org/zap"
)

// severityLabels is the device error severity scale. Out-of-range
// values clamp to CRITICAL rather than being rejected.
var severityLabels = [...]string{"INFO", "WARNING", "ERROR", "CRITICAL"}

func severityLabel(severity int) string {
	if severity < 0 || severity >= len(severityLabels) {
		return severityLabels[len(severityLabels)-1]
	}
	return severityLabels[severity]
}

// LiveFeed publishes standardized telemetry to Redis Streams for
// downstream realtime consumers (alerting, dashboards). Disabled when
// the stream names are empty or the client is nil.
type LiveFeed struct {
	Client       *rediscommon.Client
	DataStream   string
	StatusStream string
}

// Collector is the ingestion pipeline's composition root: it owns the
// identity cache, holds the ordered sink list, and dispatches routed
// events to the handlers. HandleMessage is driven synchronously by
// the transport's receive loop, so handlers never run concurrently
// with each other.
type Collector struct {
	sinks  []storage.Sink
	cache  *IdentityCache
	live   *LiveFeed
	logger *zap.Logger

	// now is stubbed in tests
	now func() time.Time
}

// NewCollector wires the pipeline. Sink order fixes both the identity
// resolution priority and the fan-out order.
func NewCollector(sinks []storage.Sink, live *LiveFeed, logger *zap.Logger) *Collector {
	return &Collector{
		sinks:  sinks,
		cache:  NewIdentityCache(sinks, logger),
		live:   live,
		logger: logger,
		now:    time.Now,
	}
}

// Cache exposes the identity cache for inspection; handlers go
// through it internally.
func (c *Collector) Cache() *IdentityCache {
	return c.cache
}

// Close closes every sink's connection pool.
func (c *Collector) Close() {
	for _, sink := range c.sinks {
		if err := sink.Close(); err != nil {
			c.logger.Error("Error closing sink",
				zap.String("sink", sink.Name()),
				zap.Error(err),
			)
		}
	}
}

// HandleMessage is the transport message callback. It classifies the
// raw message and dispatches it; nothing that happens here may halt
// processing of subsequent messages.
func (c *Collector) HandleMessage(topic string, payload []byte) {
	ctx := context.Background()

	switch ev := Classify(topic, payload).(type) {
	case CapabilitiesEvent:
		c.handleCapabilities(ctx, ev)
	case SensorDataEvent:
		c.handleSensorData(ctx, ev)
	case StatusEvent:
		c.handleStatus(ctx, ev)
	case ErrorEvent:
		c.handleError(ev)
	case UnrecognizedEvent:
		c.logger.Warn("Dropping unrecognized message",
			zap.String("topic", ev.Topic),
			zap.String("reason", ev.Reason),
		)
	}
}

// handleCapabilities upserts the device and registers every declared
// sensor kind in every sink. Safe to receive repeatedly and in any
// order relative to data messages.
func (c *Collector) handleCapabilities(ctx context.Context, ev CapabilitiesEvent) {
	c.logger.Info("Device announced capabilities",
		zap.String("device_id", ev.DeviceID),
		zap.Int("sensor_count", len(ev.Payload.Sensors)),
	)

	for _, sink := range c.sinks {
		if err := sink.EnsureDevice(ctx, ev.DeviceID, ev.Payload.DeviceName, ev.Payload.DeviceLocation, ev.Payload.FirmwareVersion); err != nil {
			c.logger.Error("Error ensuring device exists",
				zap.String("sink", sink.Name()),
				zap.String("device_id", ev.DeviceID),
				zap.Error(err),
			)
		}
	}

	for _, kind := range ev.Payload.Sensors {
		c.registerSensor(ctx, ev.DeviceID, kind, ev.Payload.SensorMeta(kind))
	}
}

// registerSensor ensures the sensor row exists in every sink and
// fills the identity cache from the first sink's authoritative id.
// The sinks' schemas assign ids in lock-step from the same message
// stream; a later sink disagreeing is logged as drift.
func (c *Collector) registerSensor(ctx context.Context, deviceID, kind string, metadata []byte) {
	cachedID := int64(-1)
	for _, sink := range c.sinks {
		id, err := sink.EnsureSensor(ctx, deviceID, kind, metadata)
		if err != nil {
			c.logger.Error("Error ensuring sensor exists",
				zap.String("sink", sink.Name()),
				zap.String("device_id", deviceID),
				zap.String("sensor_type", kind),
				zap.Error(err),
			)
			continue
		}
		if cachedID < 0 {
			cachedID = id
			c.cache.Put(deviceID, kind, id)
		} else if id != cachedID {
			c.logger.Warn("Sensor id drift between sinks",
				zap.String("sink", sink.Name()),
				zap.String("device_id", deviceID),
				zap.String("sensor_type", kind),
				zap.Int64("expected_id", cachedID),
				zap.Int64("sink_id", id),
			)
		}
	}
}

// handleSensorData resolves the sensor identity and fans each metric
// out to every sink independently: a failure in one sink is logged
// and never blocks the others.
func (c *Collector) handleSensorData(ctx context.Context, ev SensorDataEvent) {
	timestamp := ev.Payload.Timestamp.Or(c.now())

	sensorID, ok := c.cache.Resolve(ctx, ev.DeviceID, ev.SensorKind)
	if !ok {
		// data arrived before the capabilities announcement
		c.logger.Warn("Sensor not found - creating automatically",
			zap.String("device_id", ev.DeviceID),
			zap.String("sensor_type", ev.SensorKind),
		)
		c.registerSensor(ctx, ev.DeviceID, ev.SensorKind, nil)

		sensorID, ok = c.cache.Resolve(ctx, ev.DeviceID, ev.SensorKind)
		if !ok {
			c.logger.Error("Failed to create sensor - discarding message",
				zap.String("device_id", ev.DeviceID),
				zap.String("sensor_type", ev.SensorKind),
			)
			return
		}
	}

	stored := make(map[string]float64, len(ev.Payload.Value))
	for metric, v := range ev.Payload.Value {
		if v.Reading == nil {
			continue
		}
		if c.appendToSinks(ctx, ev, sensorID, timestamp, metric, *v.Reading) {
			stored[metric] = *v.Reading
		}
	}

	if len(stored) > 0 {
		c.logger.Info("Stored sensor reading",
			zap.String("device_id", ev.DeviceID),
			zap.String("sensor_type", ev.SensorKind),
			zap.Time("time", timestamp),
			zap.Int("metric_count", len(stored)),
		)
	}

	c.publishData(ctx, ev, sensorID, timestamp, stored)
}

// appendToSinks fans one metric out to every sink, reporting whether
// at least one accepted it. The "Stored sensor reading" log and the
// live feed must only ever claim readings that actually landed.
func (c *Collector) appendToSinks(ctx context.Context, ev SensorDataEvent, sensorID int64, t time.Time, metric string, value float64) bool {
	accepted := false
	for _, sink := range c.sinks {
		if err := sink.AppendMeasurement(ctx, sensorID, t, metric, value); err != nil {
			c.logger.Error("Error storing sensor data",
				zap.String("sink", sink.Name()),
				zap.String("device_id", ev.DeviceID),
				zap.String("sensor_type", ev.SensorKind),
				zap.String("metric_type", metric),
				zap.Error(err),
			)
			continue
		}
		accepted = true
	}
	return accepted
}

// handleStatus logs the device status change; a collaborator may
// subscribe to the status stream for alerting.
func (c *Collector) handleStatus(ctx context.Context, ev StatusEvent) {
	timestamp := ev.Payload.Timestamp.Or(c.now())

	c.logger.Info("Device status changed",
		zap.String("device_id", ev.DeviceID),
		zap.String("status", ev.Payload.Value),
		zap.Time("time", timestamp),
	)

	if c.live == nil || c.live.Client == nil || c.live.StatusStream == "" {
		return
	}
	_, err := rediscommon.PublishJSONToStream(ctx, c.live.Client, c.live.StatusStream, map[string]interface{}{
		"device_id": ev.DeviceID,
		"status":    ev.Payload.Value,
		"timestamp": timestamp.Unix(),
		"topic":     "devices/status",
	})
	if err != nil {
		c.logger.Error("Failed to publish status to stream",
			zap.String("stream", c.live.StatusStream),
			zap.String("device_id", ev.DeviceID),
			zap.Error(err),
		)
	}
}

// handleError logs the device error report with its severity clamped
// into the fixed four-level scale.
func (c *Collector) handleError(ev ErrorEvent) {
	c.logger.Error("Device reported error",
		zap.String("device_id", ev.DeviceID),
		zap.String("severity", severityLabel(ev.Payload.Value.Severity)),
		zap.String("error_type", ev.Payload.Value.ErrorType),
		zap.String("message", ev.Payload.Value.Message),
	)
}

// publishData mirrors a stored reading onto the live data stream.
// Publish failure is sink-isolated the same way storage failures are:
// logged, never raised.
func (c *Collector) publishData(ctx context.Context, ev SensorDataEvent, sensorID int64, timestamp time.Time, values map[string]float64) {
	if c.live == nil || c.live.Client == nil || c.live.DataStream == "" || len(values) == 0 {
		return
	}
	_, err := rediscommon.PublishJSONToStream(ctx, c.live.Client, c.live.DataStream, map[string]interface{}{
		"device_id":   ev.DeviceID,
		"sensor_type": ev.SensorKind,
		"sensor_id":   sensorID,
		"values":      values,
		"timestamp":   timestamp.Unix(),
		"topic":       "devices/data",
	})
	if err != nil {
		c.logger.Error("Failed to publish data to stream",
			zap.String("stream", c.live.DataStream),
			zap.String("device_id", ev.DeviceID),
			zap.Error(err),
		)
	}
}

package consumer

import (
	"context"
	"sync"

	"ambient-collector/internal/storage"

	"go.uber.org/zap"
)

// IdentityCache maps (device id, sensor kind) to the store-assigned
// sensor id. It is a derived projection of the sensors table, never
// the source of truth: entries are only ever added, relying on sensor
// rows being immutable once created. On a miss the sinks are queried
// in priority order and the first positive result is adopted.
type IdentityCache struct {
	sinks  []storage.Sink
	logger *zap.Logger

	mu  sync.RWMutex
	ids map[string]int64
}

// NewIdentityCache creates an empty cache backed by the given sinks.
// Sink order is the resolution priority.
func NewIdentityCache(sinks []storage.Sink, logger *zap.Logger) *IdentityCache {
	return &IdentityCache{
		sinks:  sinks,
		logger: logger,
		ids:    make(map[string]int64),
	}
}

func cacheKey(deviceID, kind string) string {
	return deviceID + "/" + kind
}

// Resolve returns the sensor id for (device, kind), consulting the
// backing stores on a cache miss. A lookup error against one sink is
// logged and the next sink is tried.
func (c *IdentityCache) Resolve(ctx context.Context, deviceID, kind string) (int64, bool) {
	key := cacheKey(deviceID, kind)

	c.mu.RLock()
	id, ok := c.ids[key]
	c.mu.RUnlock()
	if ok {
		return id, true
	}

	for _, sink := range c.sinks {
		id, found, err := sink.LookupSensor(ctx, deviceID, kind)
		if err != nil {
			c.logger.Error("Sensor lookup failed",
				zap.String("sink", sink.Name()),
				zap.String("device_id", deviceID),
				zap.String("sensor_type", kind),
				zap.Error(err),
			)
			continue
		}
		if found {
			c.Put(deviceID, kind, id)
			return id, true
		}
	}

	return 0, false
}

// Put records a resolved sensor id.
func (c *IdentityCache) Put(deviceID, kind string, id int64) {
	c.mu.Lock()
	c.ids[cacheKey(deviceID, kind)] = id
	c.mu.Unlock()
}

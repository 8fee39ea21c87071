package inspector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Inspector periodically checks every registered device for recent
// measurements and notifies when one has gone quiet. It shares only
// the persisted store with the collector; there is no direct channel
// between the two processes.
type Inspector struct {
	store     ActivityStore
	notifier  Notifier
	threshold time.Duration
	interval  time.Duration
	logger    *zap.Logger

	// now is stubbed in tests
	now func() time.Time
}

// NewInspector creates an inspector.
func NewInspector(store ActivityStore, notifier Notifier, threshold, interval time.Duration, logger *zap.Logger) *Inspector {
	return &Inspector{
		store:     store,
		notifier:  notifier,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Run checks activity every interval until the context is cancelled.
// Check failures are logged and the loop continues.
func (i *Inspector) Run(ctx context.Context) error {
	i.logger.Info("Device activity inspector started",
		zap.Duration("check_interval", i.interval),
		zap.Duration("inactivity_threshold", i.threshold),
	)

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		if err := i.CheckOnce(ctx); err != nil {
			i.logger.Error("Activity check failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			i.logger.Info("Device activity inspector stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// CheckOnce inspects every device once. A notification failure for
// one device does not stop the sweep.
func (i *Inspector) CheckOnce(ctx context.Context) error {
	devices, err := i.store.ListDevices(ctx)
	if err != nil {
		return err
	}

	now := i.now().UTC()
	cutoff := now.Add(-i.threshold)

	for _, device := range devices {
		latest, ok, err := i.store.LatestMeasurement(ctx, device.DeviceID)
		if err != nil {
			i.logger.Error("Failed to query device activity",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			continue
		}

		var message string
		switch {
		case !ok:
			message = fmt.Sprintf("Device %s (%s) has never sent data", device.DeviceName, device.DeviceID)
		case latest.Before(cutoff):
			minutes := int(now.Sub(latest).Minutes())
			message = fmt.Sprintf("Device %s (%s) inactive for %d minutes", device.DeviceName, device.DeviceID, minutes)
		default:
			continue
		}

		if err := i.notifier.Notify(ctx, message); err != nil {
			i.logger.Error("Notification failed",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
		}
	}

	return nil
}

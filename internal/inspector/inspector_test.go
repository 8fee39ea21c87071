package inspector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	devices []Device
	latest  map[string]time.Time
	listErr error
}

func (s *fakeStore) ListDevices(ctx context.Context) ([]Device, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.devices, nil
}

func (s *fakeStore) LatestMeasurement(ctx context.Context, deviceID string) (time.Time, bool, error) {
	t, ok := s.latest[deviceID]
	return t, ok, nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) Notify(ctx context.Context, message string) error {
	n.messages = append(n.messages, message)
	return n.err
}

func newTestInspector(store ActivityStore, notifier Notifier, now time.Time) *Inspector {
	i := NewInspector(store, notifier, 5*time.Minute, time.Hour, zap.NewNop())
	i.now = func() time.Time { return now }
	return i
}

func TestCheckOnce_InactiveDeviceNotified(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		devices: []Device{{DeviceID: "dev1", DeviceName: "Living Room"}},
		latest:  map[string]time.Time{"dev1": now.Add(-10 * time.Minute)},
	}
	notifier := &fakeNotifier{}

	require.NoError(t, newTestInspector(store, notifier, now).CheckOnce(context.Background()))

	require.Len(t, notifier.messages, 1)
	require.Equal(t, "Device Living Room (dev1) inactive for 10 minutes", notifier.messages[0])
}

func TestCheckOnce_SilentDeviceNotified(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		devices: []Device{{DeviceID: "dev2", DeviceName: "Bedroom"}},
		latest:  map[string]time.Time{},
	}
	notifier := &fakeNotifier{}

	require.NoError(t, newTestInspector(store, notifier, now).CheckOnce(context.Background()))

	require.Len(t, notifier.messages, 1)
	require.Equal(t, "Device Bedroom (dev2) has never sent data", notifier.messages[0])
}

func TestCheckOnce_ActiveDeviceSilent(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		devices: []Device{{DeviceID: "dev1", DeviceName: "Living Room"}},
		latest:  map[string]time.Time{"dev1": now.Add(-time.Minute)},
	}
	notifier := &fakeNotifier{}

	require.NoError(t, newTestInspector(store, notifier, now).CheckOnce(context.Background()))

	require.Empty(t, notifier.messages)
}

func TestCheckOnce_NotifierFailureDoesNotStopSweep(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		devices: []Device{
			{DeviceID: "dev1", DeviceName: "A"},
			{DeviceID: "dev2", DeviceName: "B"},
		},
		latest: map[string]time.Time{},
	}
	notifier := &fakeNotifier{err: errors.New("pushover down")}

	require.NoError(t, newTestInspector(store, notifier, now).CheckOnce(context.Background()))

	require.Len(t, notifier.messages, 2, "both devices attempted despite delivery failures")
}

func TestCheckOnce_ListErrorPropagates(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	notifier := &fakeNotifier{}

	err := newTestInspector(store, notifier, time.Now()).CheckOnce(context.Background())
	require.Error(t, err)
}

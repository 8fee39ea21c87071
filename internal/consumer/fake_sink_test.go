package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

type fakeDevice struct {
	name     string
	location string
	firmware string
}

type fakeMeasurement struct {
	sensorID int64
	time     time.Time
	metric   string
	value    float64
}

// fakeSink is an in-memory Sink used by the pipeline tests.
type fakeSink struct {
	name string

	mu           sync.Mutex
	devices      map[string]fakeDevice
	sensors      map[string]int64
	metadata     map[string]string
	nextID       int64
	measurements []fakeMeasurement

	failAppend bool
	failLookup bool
	closed     bool
}

func newFakeSink(name string) *fakeSink {
	return &fakeSink{
		name:     name,
		devices:  make(map[string]fakeDevice),
		sensors:  make(map[string]int64),
		metadata: make(map[string]string),
	}
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) EnsureDevice(_ context.Context, deviceID, name, location, firmware string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[deviceID] = fakeDevice{name: name, location: location, firmware: firmware}
	return nil
}

func (s *fakeSink) EnsureSensor(_ context.Context, deviceID, kind string, metadata json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deviceID + "/" + kind
	if id, ok := s.sensors[key]; ok {
		return id, nil
	}
	s.nextID++
	s.sensors[key] = s.nextID
	s.metadata[key] = string(metadata)
	return s.nextID, nil
}

func (s *fakeSink) LookupSensor(_ context.Context, deviceID, kind string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLookup {
		return 0, false, errors.New("lookup failed")
	}
	id, ok := s.sensors[deviceID+"/"+kind]
	return id, ok, nil
}

func (s *fakeSink) AppendMeasurement(_ context.Context, sensorID int64, t time.Time, metric string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return errors.New("append failed")
	}
	s.measurements = append(s.measurements, fakeMeasurement{
		sensorID: sensorID,
		time:     t,
		metric:   metric,
		value:    value,
	})
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) measurementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.measurements)
}

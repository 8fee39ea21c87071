//go:build integration

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"ambient-collector/internal/config"
	"ambient-collector/internal/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getTestDB(t *testing.T, dbName string) *sql.DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: dbName,
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil
	}

	return db
}

func getFlexibleTestDB(t *testing.T) *sql.DB {
	return getTestDB(t, getEnv("TEST_DB_FLEXIBLE_NAME", "ambient_sensors_flexible"))
}

func getColumnarTestDB(t *testing.T) *sql.DB {
	return getTestDB(t, getEnv("TEST_DB_COLUMNAR_NAME", "ambient_sensors_columnar"))
}

func testDeviceID() string {
	return "test-" + uuid.NewString()[:8]
}

func TestFlexibleSink_EnsureDeviceIdempotent(t *testing.T) {
	db := getFlexibleTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	sink := NewFlexibleSinkWithDB(db, zap.NewNop())
	ctx := context.Background()
	deviceID := testDeviceID()

	if err := sink.EnsureDevice(ctx, deviceID, "esp32", "hall", "1.0.0"); err != nil {
		t.Fatalf("EnsureDevice failed: %v", err)
	}
	// second registration must update in place, not duplicate
	if err := sink.EnsureDevice(ctx, deviceID, "esp32", "kitchen", "1.1.0"); err != nil {
		t.Fatalf("EnsureDevice failed: %v", err)
	}

	var count int
	var location, firmware string
	err := db.QueryRow(`SELECT COUNT(*) FROM devices WHERE device_id = $1`, deviceID).Scan(&count)
	if err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 device row, got %d", count)
	}

	err = db.QueryRow(`SELECT location, firmware_version FROM devices WHERE device_id = $1`, deviceID).Scan(&location, &firmware)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if location != "kitchen" || firmware != "1.1.0" {
		t.Errorf("Expected last-writer-wins update, got location=%s firmware=%s", location, firmware)
	}
}

func TestFlexibleSink_EnsureSensorStableID(t *testing.T) {
	db := getFlexibleTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	sink := NewFlexibleSinkWithDB(db, zap.NewNop())
	ctx := context.Background()
	deviceID := testDeviceID()

	if err := sink.EnsureDevice(ctx, deviceID, "esp32", "hall", "1.0.0"); err != nil {
		t.Fatalf("EnsureDevice failed: %v", err)
	}

	meta := json.RawMessage(`{"location":"shelf","interval":30}`)
	first, err := sink.EnsureSensor(ctx, deviceID, "scd30", meta)
	if err != nil {
		t.Fatalf("EnsureSensor failed: %v", err)
	}

	// re-announcing with different metadata is a no-op
	second, err := sink.EnsureSensor(ctx, deviceID, "scd30", json.RawMessage(`{"location":"desk"}`))
	if err != nil {
		t.Fatalf("EnsureSensor failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected stable sensor id, got %d then %d", first, second)
	}

	var location string
	if err := db.QueryRow(`SELECT location FROM sensors WHERE sensor_id = $1`, first).Scan(&location); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if location != "shelf" {
		t.Errorf("Expected original location preserved, got %s", location)
	}

	id, found, err := sink.LookupSensor(ctx, deviceID, "scd30")
	if err != nil {
		t.Fatalf("LookupSensor failed: %v", err)
	}
	if !found || id != first {
		t.Errorf("Expected lookup to return %d, got %d (found=%v)", first, id, found)
	}
}

func TestFlexibleSink_AppendMeasurement(t *testing.T) {
	db := getFlexibleTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	sink := NewFlexibleSinkWithDB(db, zap.NewNop())
	ctx := context.Background()
	deviceID := testDeviceID()

	if err := sink.EnsureDevice(ctx, deviceID, "esp32", "hall", "1.0.0"); err != nil {
		t.Fatalf("EnsureDevice failed: %v", err)
	}
	sensorID, err := sink.EnsureSensor(ctx, deviceID, "scd30", nil)
	if err != nil {
		t.Fatalf("EnsureSensor failed: %v", err)
	}

	ts := time.Unix(1700000000, 0).UTC()
	for metric, value := range map[string]float64{"co2": 612, "temperature": 21.5, "humidity": 40.2} {
		if err := sink.AppendMeasurement(ctx, sensorID, ts, metric, value); err != nil {
			t.Fatalf("AppendMeasurement(%s) failed: %v", metric, err)
		}
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM measurements WHERE sensor_id = $1`, sensorID).Scan(&count)
	if err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 narrow rows, got %d", count)
	}
}

func TestColumnarSink_MetricsMergeIntoOneRow(t *testing.T) {
	db := getColumnarTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	sink := NewColumnarSinkWithDB(db, zap.NewNop())
	ctx := context.Background()
	deviceID := testDeviceID()

	if err := sink.EnsureDevice(ctx, deviceID, "esp32", "hall", "1.0.0"); err != nil {
		t.Fatalf("EnsureDevice failed: %v", err)
	}
	sensorID, err := sink.EnsureSensor(ctx, deviceID, "scd30", nil)
	if err != nil {
		t.Fatalf("EnsureSensor failed: %v", err)
	}

	ts := time.Unix(1700000000, 0).UTC()
	if err := sink.AppendMeasurement(ctx, sensorID, ts, "co2", 612); err != nil {
		t.Fatalf("AppendMeasurement(co2) failed: %v", err)
	}
	if err := sink.AppendMeasurement(ctx, sensorID, ts, "temperature", 21.5); err != nil {
		t.Fatalf("AppendMeasurement(temperature) failed: %v", err)
	}

	var count int
	var co2, temperature sql.NullFloat64
	err = db.QueryRow(`SELECT COUNT(*) FROM scd30_measurements WHERE sensor_id = $1`, sensorID).Scan(&count)
	if err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected metrics merged into 1 wide row, got %d", count)
	}

	err = db.QueryRow(`SELECT co2, temperature FROM scd30_measurements WHERE sensor_id = $1`, sensorID).Scan(&co2, &temperature)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if !co2.Valid || co2.Float64 != 612 {
		t.Errorf("Expected co2=612, got %v", co2)
	}
	if !temperature.Valid || temperature.Float64 != 21.5 {
		t.Errorf("Expected temperature=21.5, got %v", temperature)
	}
}

func TestColumnarSink_UnknownKindSkipped(t *testing.T) {
	db := getColumnarTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	sink := NewColumnarSinkWithDB(db, zap.NewNop())
	ctx := context.Background()
	deviceID := testDeviceID()

	if err := sink.EnsureDevice(ctx, deviceID, "esp32", "hall", "1.0.0"); err != nil {
		t.Fatalf("EnsureDevice failed: %v", err)
	}
	sensorID, err := sink.EnsureSensor(ctx, deviceID, fmt.Sprintf("mystery-%s", uuid.NewString()[:8]), nil)
	if err != nil {
		t.Fatalf("EnsureSensor failed: %v", err)
	}

	// no table for this kind: append is a logged no-op, not an error
	if err := sink.AppendMeasurement(ctx, sensorID, time.Now().UTC(), "whatever", 1); err != nil {
		t.Errorf("Expected unknown kind to be skipped without error, got %v", err)
	}
}

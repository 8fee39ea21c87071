package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ambient-collector/internal/config"
	"ambient-collector/internal/database"

	"go.uber.org/zap"
)

// columnarTable describes one wide per-kind measurement table. Table
// and column names are fixed here and never taken from input, so they
// can be spliced into SQL.
type columnarTable struct {
	table   string
	columns map[string]bool
}

var columnarTables = map[string]columnarTable{
	"scd30": {
		table:   "scd30_measurements",
		columns: map[string]bool{"co2": true, "temperature": true, "humidity": true},
	},
	"bmp280": {
		table:   "bmp280_measurements",
		columns: map[string]bool{"pressure": true, "temperature": true, "humidity": true},
	},
}

// ColumnarSink stores measurements in wide per-sensor-kind tables,
// one row per reading keyed by (sensor_id, time). Metrics of the same
// reading arrive as independent appends and are merged into the row
// by upsert. Sensor kinds without a table are logged and skipped.
type ColumnarSink struct {
	postgresRegistry

	// sensor id → kind, to route appends to the right table. Sensor
	// rows are immutable so entries never go stale.
	mu       sync.RWMutex
	kindByID map[int64]string
}

var _ Sink = (*ColumnarSink)(nil)

// NewColumnarSink connects to the columnar measurement database.
func NewColumnarSink(cfg *config.DatabaseConfig, logger *zap.Logger) (*ColumnarSink, error) {
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to columnar database: %w", err)
	}
	logger.Info("Columnar database connection pool created",
		zap.String("database", cfg.Database),
	)
	return NewColumnarSinkWithDB(db, logger), nil
}

// NewColumnarSinkWithDB wraps an existing pool (used by tests).
func NewColumnarSinkWithDB(db *sql.DB, logger *zap.Logger) *ColumnarSink {
	return &ColumnarSink{
		postgresRegistry: postgresRegistry{
			db:     db,
			name:   "columnar",
			logger: logger,
		},
		kindByID: make(map[int64]string),
	}
}

// Name identifies the sink in logs.
func (s *ColumnarSink) Name() string {
	return "columnar"
}

// EnsureSensor records the id→kind mapping alongside registration.
func (s *ColumnarSink) EnsureSensor(ctx context.Context, deviceID, kind string, metadata json.RawMessage) (int64, error) {
	id, err := s.postgresRegistry.EnsureSensor(ctx, deviceID, kind, metadata)
	if err != nil {
		return 0, err
	}
	s.rememberKind(id, kind)
	return id, nil
}

// LookupSensor records the id→kind mapping alongside resolution.
func (s *ColumnarSink) LookupSensor(ctx context.Context, deviceID, kind string) (int64, bool, error) {
	id, ok, err := s.postgresRegistry.LookupSensor(ctx, deviceID, kind)
	if err == nil && ok {
		s.rememberKind(id, kind)
	}
	return id, ok, err
}

// AppendMeasurement upserts the metric's column into the reading row.
func (s *ColumnarSink) AppendMeasurement(ctx context.Context, sensorID int64, t time.Time, metric string, value float64) error {
	kind, err := s.sensorKind(ctx, sensorID)
	if err != nil {
		return err
	}

	layout, ok := columnarTables[kind]
	if !ok {
		s.logger.Warn("Unknown sensor type for columnar storage",
			zap.String("sink", s.name),
			zap.Int64("sensor_id", sensorID),
			zap.String("sensor_type", kind),
		)
		return nil
	}
	if !layout.columns[metric] {
		s.logger.Warn("Metric has no column in columnar table",
			zap.String("sink", s.name),
			zap.String("sensor_type", kind),
			zap.String("metric_type", metric),
		)
		return nil
	}

	// table and column come from the fixed layout above, never from input
	query := fmt.Sprintf(`
		INSERT INTO %s (time, sensor_id, %s)
		VALUES ($1, $2, $3)
		ON CONFLICT (time, sensor_id)
		DO UPDATE SET %s = EXCLUDED.%s
	`, layout.table, metric, metric, metric)

	if _, err := s.db.ExecContext(ctx, query, t, sensorID, value); err != nil {
		return fmt.Errorf("failed to store %s measurement for sensor %d: %w", metric, sensorID, err)
	}

	s.logger.Debug("Stored measurement",
		zap.String("sink", s.name),
		zap.Int64("sensor_id", sensorID),
		zap.Time("time", t),
		zap.String("metric_type", metric),
		zap.Float64("value", value),
	)
	return nil
}

func (s *ColumnarSink) rememberKind(sensorID int64, kind string) {
	s.mu.Lock()
	s.kindByID[sensorID] = kind
	s.mu.Unlock()
}

// sensorKind resolves a sensor id back to its kind, falling back to
// the sensors table when the id was cached by another process run.
func (s *ColumnarSink) sensorKind(ctx context.Context, sensorID int64) (string, error) {
	s.mu.RLock()
	kind, ok := s.kindByID[sensorID]
	s.mu.RUnlock()
	if ok {
		return kind, nil
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT sensor_type FROM sensors WHERE sensor_id = $1
	`, sensorID).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("sensor %d not registered in columnar store", sensorID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve sensor %d kind: %w", sensorID, err)
	}

	s.rememberKind(sensorID, kind)
	return kind, nil
}

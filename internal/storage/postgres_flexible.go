package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ambient-collector/internal/config"
	"ambient-collector/internal/database"

	"go.uber.org/zap"
)

// FlexibleSink stores measurements in a single narrow table, one row
// per metric per reading. New metric names need no schema change.
type FlexibleSink struct {
	postgresRegistry
}

var _ Sink = (*FlexibleSink)(nil)

// NewFlexibleSink connects to the flexible measurement database.
func NewFlexibleSink(cfg *config.DatabaseConfig, logger *zap.Logger) (*FlexibleSink, error) {
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to flexible database: %w", err)
	}
	logger.Info("Flexible database connection pool created",
		zap.String("database", cfg.Database),
	)
	return NewFlexibleSinkWithDB(db, logger), nil
}

// NewFlexibleSinkWithDB wraps an existing pool (used by tests).
func NewFlexibleSinkWithDB(db *sql.DB, logger *zap.Logger) *FlexibleSink {
	return &FlexibleSink{
		postgresRegistry: postgresRegistry{
			db:     db,
			name:   "flexible",
			logger: logger,
		},
	}
}

// Name identifies the sink in logs.
func (s *FlexibleSink) Name() string {
	return "flexible"
}

// AppendMeasurement inserts one metric row.
func (s *FlexibleSink) AppendMeasurement(ctx context.Context, sensorID int64, t time.Time, metric string, value float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO measurements (time, sensor_id, metric_type, value)
		VALUES ($1, $2, $3, $4)
	`, t, sensorID, metric, value)
	if err != nil {
		return fmt.Errorf("failed to store measurement %s for sensor %d: %w", metric, sensorID, err)
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

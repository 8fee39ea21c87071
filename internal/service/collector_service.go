package service

import (
	"context"
	"fmt"

	"ambient-collector/internal/config"
	"ambient-collector/internal/consumer"
	"ambient-collector/internal/mqtt"
	rediscommon "ambient-collector/internal/redis"
	"ambient-collector/internal/storage"

	"go.uber.org/zap"
)

// CollectorService owns the full ingestion stack: storage sinks, the
// optional live feed, the collector pipeline and the MQTT connection
// manager.
type CollectorService struct {
	config    *config.Config
	logger    *zap.Logger
	redis     *rediscommon.Client
	collector *consumer.Collector
	connMgr   *consumer.ConnManager
}

// NewCollectorService builds the service from config. At least one
// sink must be enabled; running the collector with nowhere to store
// data is a deployment mistake.
func NewCollectorService(cfg *config.Config, logger *zap.Logger) (*CollectorService, error) {
	var sinks []storage.Sink

	if cfg.Collector.EnableFlexible {
		sink, err := storage.NewFlexibleSink(&cfg.FlexibleDB, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create flexible sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Collector.EnableColumnar {
		sink, err := storage.NewColumnarSink(&cfg.ColumnarDB, logger)
		if err != nil {
			closeSinks(sinks, logger)
			return nil, fmt.Errorf("failed to create columnar sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no storage sinks enabled")
	}

	var live *consumer.LiveFeed
	var redisClient *rediscommon.Client
	if cfg.Collector.DataStream != "" || cfg.Collector.StatusStream != "" {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
			closeSinks(sinks, logger)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		live = &consumer.LiveFeed{
			Client:       redisClient,
			DataStream:   cfg.Collector.DataStream,
			StatusStream: cfg.Collector.StatusStream,
		}
	}

	collector := consumer.NewCollector(sinks, live, logger)

	dialer := mqtt.NewDialer(&cfg.MQTT)
	connMgr := consumer.NewConnManager(
		dialer,
		consumer.DeviceSubscriptions(),
		collector.HandleMessage,
		cfg.Collector.InitialBackoff,
		cfg.Collector.MaxBackoff,
		logger,
	)

	return &CollectorService{
		config:    cfg,
		logger:    logger,
		redis:     redisClient,
		collector: collector,
		connMgr:   connMgr,
	}, nil
}

// Start launches the connection manager and blocks until the context
// is cancelled.
func (s *CollectorService) Start(ctx context.Context) error {
	s.logger.Info("Starting collector service",
		zap.String("mqtt_broker", s.config.MQTT.Broker),
		zap.Bool("flexible_db", s.config.Collector.EnableFlexible),
		zap.Bool("columnar_db", s.config.Collector.EnableColumnar),
	)

	s.connMgr.Start()

	<-ctx.Done()
	return nil
}

// Stop halts the transport loop first, then closes the sinks, so no
// in-flight handler observes a closed pool.
func (s *CollectorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping collector service")

	s.connMgr.Stop()
	s.collector.Close()

	if s.redis != nil {
		if err := rediscommon.Close(s.redis); err != nil {
			s.logger.Error("Error closing redis client", zap.Error(err))
		}
	}

	s.logger.Info("Collector service stopped")
	return nil
}

func closeSinks(sinks []storage.Sink, logger *zap.Logger) {
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			logger.Error("Error closing sink",
				zap.String("sink", sink.Name()),
				zap.Error(err),
			)
		}
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ambient-collector/internal/config"
	"ambient-collector/internal/logger"
	"ambient-collector/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "ambient-collector")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting ambient-collector service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.Bool("flexible_db", cfg.Collector.EnableFlexible),
		zap.Bool("columnar_db", cfg.Collector.EnableColumnar),
	)

	collectorService, err := service.NewCollectorService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create collector service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := collectorService.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start collector service", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	if err := collectorService.Stop(ctx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ambient-collector/internal/config"
	"ambient-collector/internal/database"
	"ambient-collector/internal/inspector"
	"ambient-collector/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "ambient-inspector")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	if cfg.Inspector.PushoverUser == "" || cfg.Inspector.PushoverToken == "" {
		zapLogger.Fatal("PUSHOVER_USER and PUSHOVER_TOKEN must be set")
	}

	db, err := database.NewPostgresDB(&cfg.FlexibleDB)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	store := inspector.NewActivityRepository(db)
	notifier := inspector.NewPushoverNotifier(
		cfg.Inspector.PushoverURL,
		cfg.Inspector.PushoverUser,
		cfg.Inspector.PushoverToken,
		zapLogger,
	)

	insp := inspector.NewInspector(
		store,
		notifier,
		cfg.Inspector.InactivityThreshold,
		cfg.Inspector.CheckInterval,
		zapLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := insp.Run(ctx); err != nil {
		zapLogger.Fatal("Inspector failed", zap.Error(err))
	}
}

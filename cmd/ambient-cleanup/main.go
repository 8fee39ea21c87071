package main

import (
	"log"
	"os"
	"time"

	"ambient-collector/internal/cleanup"
	"ambient-collector/internal/config"
	"ambient-collector/internal/logger"

	"go.uber.org/zap"
)

// One-shot cleanup of the export folder, intended for a daily cron.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "ambient-cleanup")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	maxAge := time.Duration(cfg.Cleanup.MaxAgeDays) * 24 * time.Hour

	zapLogger.Info("Starting cleanup",
		zap.String("folder", cfg.Cleanup.Folder),
		zap.Int("max_age_days", cfg.Cleanup.MaxAgeDays),
	)

	result, err := cleanup.RemoveOldFiles(cfg.Cleanup.Folder, maxAge, zapLogger)
	if err != nil {
		zapLogger.Error("Cleanup failed", zap.Error(err))
		os.Exit(1)
	}

	zapLogger.Info("Cleanup complete",
		zap.Int("deleted", result.Deleted),
		zap.Int("failed", result.Failed),
		zap.String("space_freed", cleanup.FormatSize(result.TotalSizeFreed)),
		zap.Strings("deleted_files", result.DeletedFiles),
		zap.Strings("failed_files", result.FailedFiles),
	)
}

package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Result summarizes one cleanup sweep.
type Result struct {
	Deleted        int
	Failed         int
	TotalSizeFreed int64
	DeletedFiles   []string
	FailedFiles    []string
}

// RemoveOldFiles deletes regular files older than maxAge from folder.
// Subdirectories are left alone. A failure to remove one file is
// recorded and the sweep continues.
func RemoveOldFiles(folder string, maxAge time.Duration, logger *zap.Logger) (*Result, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("folder does not exist: %s", folder)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", folder)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder %s: %w", folder, err)
	}

	cutoff := time.Now().Add(-maxAge)
	result := &Result{}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(folder, entry.Name())
		fileInfo, err := entry.Info()
		if err != nil {
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}

		if fileInfo.ModTime().After(cutoff) {
			continue
		}

		size := fileInfo.Size()
		if err := os.Remove(path); err != nil {
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, fmt.Sprintf("%s: %v", entry.Name(), err))
			logger.Error("Failed to remove file",
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}

		result.Deleted++
		result.TotalSizeFreed += size
		result.DeletedFiles = append(result.DeletedFiles, entry.Name())
		logger.Debug("Removed file",
			zap.String("file", entry.Name()),
			zap.Int64("size", size),
		)
	}

	return result, nil
}

// FormatSize renders bytes human-readable.
func FormatSize(sizeBytes int64) string {
	size := float64(sizeBytes)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.2f TB", size)
}

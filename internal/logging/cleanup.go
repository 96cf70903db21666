package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"gorm.io/gorm"
)

// PurgeSystemLogs deletes system_logs older than retention.
func PurgeSystemLogs(ctx context.Context, db *gorm.DB, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CleanupJob returns a cron job that purges old system logs.
func CleanupJob(db *gorm.DB, retention time.Duration) func() {
	return func() {
		deleted, err := PurgeSystemLogs(context.Background(), db, retention)
		if err != nil {
			slog.Error("log cleanup failed", "error", err)
			return
		}
		if deleted > 0 {
			slog.Info("log cleanup completed", "deleted", deleted)
		}
	}
}

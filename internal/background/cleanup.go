package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AttemptPurger deletes attempt history older than a retention period
type AttemptPurger interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// CleanupManager periodically purges the attempt log
type CleanupManager struct {
	purger        AttemptPurger
	retentionDays int
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewCleanupManager creates a new cleanup manager. An interval of zero or less
// disables the periodic run; Start then returns immediately.
func NewCleanupManager(
	purger AttemptPurger,
	retentionDays int,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		purger:        purger,
		retentionDays: retentionDays,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	if cm.interval <= 0 {
		cm.logger.Info("attempt cleanup disabled")
		return
	}

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce purges once and returns the number of deleted records
func (cm *CleanupManager) RunOnce(ctx context.Context) int64 {
	cm.logger.Info("starting attempt log cleanup", slog.Int("retention_days", cm.retentionDays))

	cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	deleted, err := cm.purger.Cleanup(cleanupCtx, cm.retentionDays)
	if err != nil {
		cm.logger.Error("failed to purge attempt log", slog.Any("error", err))
		return 0
	}

	if deleted > 0 {
		cm.logger.Info("attempt log cleanup completed", slog.Int64("rows_deleted", deleted))
	}
	return deleted
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

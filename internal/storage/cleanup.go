package storage

import (
	"context"
	"time"

	"github.com/dgellow/signin-front/internal/log"
)

// CleanupManager periodically removes expired login requests and sessions
type CleanupManager struct {
	storage  Storage
	interval time.Duration
	now      func() time.Time
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(storage Storage, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		storage:  storage,
		interval: interval,
		now:      time.Now,
	}
}

// Run executes the cleanup loop until ctx is cancelled. It always returns
// nil so it can run under an errgroup without tearing the group down.
func (cm *CleanupManager) Run(ctx context.Context) error {
	log.LogInfoWithFields("cleanup", "Starting storage cleanup manager", map[string]any{
		"interval": cm.interval.String(),
	})

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	cm.Cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.Cleanup(ctx)
		case <-ctx.Done():
			log.LogInfoWithFields("cleanup", "Storage cleanup manager stopped", nil)
			return nil
		}
	}
}

// Cleanup performs a single cleanup pass
func (cm *CleanupManager) Cleanup(ctx context.Context) int {
	count, err := cm.storage.CleanupExpired(ctx, cm.now())
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired records", map[string]any{
			"error": err.Error(),
		})
		return count
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired records", map[string]any{
			"count": count,
		})
	}
	return count
}

package idempotency

import (
	"log/slog"
	"time"
)

// DefaultExpiry is how long a recorded event-creation response stays
// replayable. Mobile clients retry within minutes; a day is generous.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys removes idempotency keys older than the given duration so
// the store does not grow without bound. Returns the number deleted.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(expiry)
	if err != nil {
		slog.Error("failed to cleanup old idempotency keys", "error", err)
		return 0, err
	}

	if deleted > 0 {
		slog.Info("cleaned up old idempotency keys", "deleted", deleted, "older_than", expiry)
	}

	return deleted, nil
}

// RunPeriodicCleanup runs CleanupOldKeys once immediately and then on every
// tick of interval until stopChan closes. The API server starts it as a
// goroutine next to the idempotency middleware and closes the channel on
// shutdown.
func RunPeriodicCleanup(repo Repository, interval time.Duration, expiry time.Duration, stopChan <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	if _, err := CleanupOldKeys(repo, expiry); err != nil {
		slog.Error("initial cleanup failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := CleanupOldKeys(repo, expiry); err != nil {
				slog.Error("periodic cleanup failed", "error", err)
			}
		case <-stopChan:
			slog.Info("stopping periodic cleanup")
			return
		}
	}
}

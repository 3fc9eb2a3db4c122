package links

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartCleanupWorker starts a background goroutine that periodically drops
// expired consumed tokens from the manager until ctx is cancelled.
func StartCleanupWorker(ctx context.Context, lm *LinkManager, interval time.Duration, logger *zap.Logger) {
	if lm == nil {
		logger.Error("Cannot start cleanup worker: link manager is nil")
		return
	}

	go func() {
		logger.Info("Starting download link cleanup worker",
			zap.Duration("interval", interval))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				count, err := lm.Purge(ctx)
				if err != nil {
					logger.Warn("Failed to purge consumed download links", zap.Error(err))
					continue
				}
				if count > 0 {
					logger.Debug("Purged consumed download links", zap.Int("count", count))
				}
			case <-ctx.Done():
				logger.Info("Cleanup worker shutting down")
				return
			}
		}
	}()
}

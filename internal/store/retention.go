package store

// retention.go runs history retention in the background.
//
// The job deletes uploads (and, by cascade, their errors) older than the
// retention window. It runs immediately on start and then every interval.
// Failures are logged and retried on the next tick; they never stop the
// application.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the retention job.
// Zero values fall back to the defaults.
type RetentionConfig struct {
	RetentionDays int           // Days of history to keep (default: 90)
	CheckInterval time.Duration // How often to run (default: 24h)
}

// Purger deletes history older than a cutoff. Implemented by *Store.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// RunRetention blocks, purging old history until ctx is cancelled.
func RunRetention(ctx context.Context, p Purger, cfg RetentionConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	logger.Info("retention job started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CheckInterval.String(),
	)

	purgeOnce(ctx, p, cfg, logger)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("retention job stopped")
			return
		case <-ticker.C:
			purgeOnce(ctx, p, cfg, logger)
		}
	}
}

func purgeOnce(ctx context.Context, p Purger, cfg RetentionConfig, logger *slog.Logger) {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -cfg.RetentionDays)

	purged, err := p.Purge(ctx, cutoff)
	if err != nil {
		logger.Error("purge failed", "error", err)
		return
	}
	logger.Info("purged upload history",
		"uploads_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

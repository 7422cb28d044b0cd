package history

// scheduler.go purges old history rows in the background. It runs once at
// start and then every CheckInterval until the context is cancelled. A
// failed purge is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// PurgeConfig controls the retention job. Zero fields take defaults.
type PurgeConfig struct {
	RetentionDays int           // default 30
	CheckInterval time.Duration // default 24h
}

func (c PurgeConfig) withDefaults() PurgeConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartPurgeScheduler blocks until ctx is done; run it in a goroutine.
func (s *Store) StartPurgeScheduler(ctx context.Context, cfg PurgeConfig) {
	cfg = cfg.withDefaults()
	slog.Info("history purge scheduler started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CheckInterval,
	)

	s.runPurge(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history purge scheduler stopped")
			return
		case <-ticker.C:
			s.runPurge(ctx, cfg)
		}
	}
}

func (s *Store) runPurge(ctx context.Context, cfg PurgeConfig) {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -cfg.RetentionDays)

	purged, err := s.Purge(ctx, cutoff)
	if err != nil {
		slog.Error("history purge failed", "error", err)
		return
	}
	slog.Info("purged upload history",
		"entries_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

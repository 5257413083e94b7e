package handlers

import (
	"context"
	"time"

	"jobportal/config"
	"jobportal/experiments"
	"jobportal/logger"
)

// StartRetentionService purges old inputs and outputs every IntervalMinutes until ctx is
// done. It does nothing when retention is disabled. The returned channel is closed when the
// service has stopped.
func StartRetentionService(ctx context.Context, cfg config.RetentionConfig, exps *experiments.Service) <-chan struct{} {
	done := make(chan struct{})
	if !cfg.Enabled {
		close(done)
		return done
	}

	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	logger.Info("Retention service: every %s, files older than %d days, destructive=%t",
		interval, cfg.Days, cfg.Destructive)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Retention service stopped")
				return
			case <-ticker.C:
				runRetention(ctx, cfg, exps)
			}
		}
	}()
	return done
}

func runRetention(ctx context.Context, cfg config.RetentionConfig, exps *experiments.Service) {
	report, err := exps.PurgeOlderThan(ctx, cfg.Days, cfg.Destructive)
	if err != nil {
		logger.Error("Retention sweep failed: %v", err)
		return
	}
	for _, e := range report.Errors {
		logger.Warn("Retention sweep: %s", e)
	}
}

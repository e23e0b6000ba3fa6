package app

import (
	"context"
	"time"
)

// RunSyncLoop drives the batch scheduler: one cycle at startup, then one
// per configured interval until the context is cancelled. It is a no-op
// when sync is disabled.
func (a *App) RunSyncLoop(ctx context.Context) {
	if a.sync == nil {
		a.logger.Info("sync loop disabled", "reason", "SYNC_ENABLED=false")
		return
	}

	interval := a.sync.Interval()
	a.logger.Info("sync loop starting", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("sync loop stopped")
			return
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

func (a *App) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	event, err := a.sync.RunCycle(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "sync cycle failed",
			"error", err,
			"status", event.Status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return
	}

	a.logger.InfoContext(ctx, "sync cycle finished",
		"status", event.Status,
		"records_written", event.RecordsWritten,
		"used_fallback", event.UsedFallback,
		"duration_ms", event.DurationMs,
	)
}

// Package retention runs the transcript janitor: transcripts left in
// the pending state beyond the configured age are flipped to failed so
// clients stop polling them. The pending->failed transition goes through
// the store's monotone transition guard like any other.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"smartscribe/pkg/config"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/models"
	"smartscribe/pkg/store"
	"smartscribe/pkg/telemetry"
)

// Start starts the janitor scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config) (context.CancelFunc, error) {
	ret := cfg.Retention
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := ret.Schedule
	if cronExpr == "" {
		cronExpr = "*/15 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Schedule)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Schedule)
	}

	maxAge := time.Duration(ret.PendingMaxAgeSeconds) * time.Second
	if maxAge <= 0 {
		maxAge = time.Hour
	}

	logger.Info("retention_enabled", "cron", cronExpr, "pending_max_age", maxAge.String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, maxAge)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, cronExpr string, maxAge time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(maxAge); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single janitor sweep. Exported so tests and admin
// triggers can invoke it on demand.
func RunOnce(maxAge time.Duration) error {
	pending, err := store.ListPendingTranscripts()
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()
	var flipped int
	for _, t := range pending {
		if t.CreatedTS >= cutoff {
			continue
		}
		if err := store.FailTranscript(t.ID, "transcription timed out"); err != nil {
			// a worker may have finished it between list and flip
			logger.Warn("retention_flip_skipped", "transcript", t.ID, "error", err)
			continue
		}
		telemetry.TranscriptsTotal.WithLabelValues(models.TranscriptFailed).Inc()
		flipped++
	}
	if flipped > 0 {
		logger.Info("retention_swept", "flipped", flipped, "scanned", len(pending))
	}
	return nil
}

package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omnipos/catalog-sync/internal/config"
	"github.com/omnipos/catalog-sync/internal/db"
	"github.com/omnipos/catalog-sync/internal/metrics"
	"github.com/omnipos/catalog-sync/internal/models"
)

// Watchdog periodically sweeps for RUNNING runs whose workers have died
// without finishing them, and marks them FAILED so the integration is
// not blocked forever.
type Watchdog struct {
	store   db.Store
	config  *config.WatchdogConfig
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewWatchdog creates a new watchdog
func NewWatchdog(store db.Store, cfg *config.WatchdogConfig, m *metrics.Metrics, logger *logrus.Logger) *Watchdog {
	return &Watchdog{
		store:   store,
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
}

// StallThreshold returns the configured default threshold
func (w *Watchdog) StallThreshold() time.Duration {
	return w.config.StallThreshold
}

// Start runs the sweep loop until the context is cancelled
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.WithFields(logrus.Fields{
		"interval":        w.config.Interval,
		"stall_threshold": w.config.StallThreshold,
	}).Info("Watchdog started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watchdog stopped")
			return
		case <-ticker.C:
			if _, err := w.CheckOnce(ctx, w.config.StallThreshold); err != nil {
				w.logger.WithError(err).Error("Watchdog sweep failed")
			}
		}
	}
}

// CheckOnce performs a single sweep and returns the runs it resolved.
// A run is stalled when it is RUNNING but has recorded no progress for
// longer than the threshold. The terminal update goes through the same
// status guard as the runner, so a worker that is merely slow cannot
// be clobbered after it finishes.
func (w *Watchdog) CheckOnce(ctx context.Context, threshold time.Duration) ([]*models.ImportRun, error) {
	stalled, err := w.store.FindStalledRuns(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find stalled runs: %w", err)
	}

	resolved := make([]*models.ImportRun, 0, len(stalled))
	for _, run := range stalled {
		logger := w.logger.WithFields(logrus.Fields{
			"run_id":           run.ID,
			"integration_id":   run.IntegrationID,
			"last_progress_at": run.LastProgressAt,
		})

		msg := fmt.Sprintf("run stalled: no progress since %s (threshold %s)",
			run.LastProgressAt.UTC().Format(time.RFC3339), threshold)
		if err := w.store.AppendRunErrors(ctx, run.ID, []string{msg}); err != nil {
			logger.WithError(err).Error("Failed to record stall error")
		}

		if err := w.store.FinishRun(ctx, run.ID, models.RunStatusFailed); err != nil {
			// The run finished between the sweep query and this update.
			logger.WithError(err).Warn("Stalled run no longer resolvable, skipping")
			continue
		}

		w.metrics.StalledRuns.Inc()
		w.metrics.RunsFinished.WithLabelValues(string(models.RunStatusFailed)).Inc()
		logger.Warn("Marked stalled run as FAILED")

		run.Status = models.RunStatusFailed
		resolved = append(resolved, run)
	}

	return resolved, nil
}

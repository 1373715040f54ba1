package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omnipos/catalog-sync/internal/batch"
	"github.com/omnipos/catalog-sync/internal/config"
	"github.com/omnipos/catalog-sync/internal/db"
	apperrors "github.com/omnipos/catalog-sync/internal/errors"
	"github.com/omnipos/catalog-sync/internal/metrics"
	"github.com/omnipos/catalog-sync/internal/models"
	"github.com/omnipos/catalog-sync/internal/queue"
)

// maxErrorLength caps free-text error messages before they land in the
// run's error list; upstream bodies can be arbitrarily large.
const maxErrorLength = 500

// Runner executes one bounded-duration segment of an import run: claim
// the run, page through the upstream catalog, upsert products, persist
// progress, and either finish the run or enqueue a continuation when
// the wall-clock budget is spent.
type Runner struct {
	store     db.Store
	clients   ClientFactory
	publisher queue.Publisher
	processor *batch.Processor
	config    *config.ImportConfig
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewRunner creates a new segment runner
func NewRunner(
	store db.Store,
	clients ClientFactory,
	publisher queue.Publisher,
	cfg *config.ImportConfig,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *Runner {
	return &Runner{
		store:     store,
		clients:   clients,
		publisher: publisher,
		processor: batch.NewProcessor(&cfg.Batch),
		config:    cfg,
		metrics:   m,
		logger:    logger,
	}
}

// RunSegment processes import job deliveries. A job for a run that is
// already terminal is logged and dropped rather than retried.
func (r *Runner) RunSegment(ctx context.Context, job *queue.ImportJob) error {
	logger := r.logger.WithFields(logrus.Fields{
		"run_id": job.RunID,
		"resume": job.Resume,
	})

	run, err := r.store.ClaimRun(ctx, job.RunID)
	if err != nil {
		if apperrors.IsRunNotClaimable(err) {
			logger.WithError(err).Warn("Dropping job for unclaimable run")
			return nil
		}
		return fmt.Errorf("failed to claim run: %w", err)
	}

	logger.WithField("cursor", run.Cursor).Info("Starting import segment")
	r.metrics.SegmentsRun.Inc()

	if err := r.runSegment(ctx, run, logger); err != nil {
		r.failRun(ctx, run.ID, err, logger)
		return err
	}

	return nil
}

func (r *Runner) runSegment(ctx context.Context, run *models.ImportRun, logger *logrus.Entry) error {
	integration, err := r.store.GetIntegration(ctx, run.IntegrationID)
	if err != nil {
		return fmt.Errorf("failed to load integration: %w", err)
	}

	client := r.clients(integration)
	deadline := time.Now().Add(r.config.SegmentBudget)
	cursor := run.Cursor
	hadFailures := run.FailedCount > 0 || len(run.Errors) > 0

	for {
		// Per-batch checkpoint: abort is observed here and nowhere
		// else, so cancellation latency is at most one batch.
		current, err := r.store.GetRun(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to refresh run: %w", err)
		}
		if current.AbortRequested {
			logger.Info("Abort requested, finishing run as ABORTED")
			if err := r.finishRun(ctx, run.ID, models.RunStatusAborted); err != nil {
				return err
			}
			return nil
		}

		page, err := client.ListCatalogPage(ctx, cursor, r.config.PageSize)
		if err != nil {
			return fmt.Errorf("failed to fetch catalog page: %w", err)
		}

		if len(page.Objects) == 0 {
			status := models.RunStatusSuccess
			if hadFailures {
				status = models.RunStatusPartial
			}
			logger.WithField("status", status).Info("Catalog exhausted, finishing run")
			return r.finishRun(ctx, run.ID, status)
		}

		var products []*models.Product
		for _, object := range page.Objects {
			products = append(products, object.Products(integration.ID, integration.Source)...)
		}

		result, err := r.processor.UpsertAll(ctx, products, r.store.UpsertProducts)
		if err != nil {
			return fmt.Errorf("failed to upsert products: %w", err)
		}

		if len(result.Errors) > 0 {
			hadFailures = true
			messages := make([]string, len(result.Errors))
			for i, batchErr := range result.Errors {
				messages[i] = truncateError(batchErr.Error())
				r.metrics.BatchErrors.Inc()
			}
			if err := r.store.AppendRunErrors(ctx, run.ID, messages); err != nil {
				return fmt.Errorf("failed to record batch errors: %w", err)
			}
			logger.WithField("batch_errors", len(messages)).Warn("Batch errors recorded, continuing at next cursor")
		}

		progress := &models.RunProgress{
			Cursor:         page.Cursor,
			ProcessedDelta: result.Created + result.Updated + result.Failed,
			CreatedDelta:   result.Created,
			UpdatedDelta:   result.Updated,
			FailedDelta:    result.Failed,
		}
		if err := r.store.ApplyRunProgress(ctx, run.ID, progress); err != nil {
			return fmt.Errorf("failed to persist progress: %w", err)
		}

		r.metrics.ProductsUpserted.WithLabelValues("created").Add(float64(result.Created))
		r.metrics.ProductsUpserted.WithLabelValues("updated").Add(float64(result.Updated))

		logger.WithFields(logrus.Fields{
			"page_objects": len(page.Objects),
			"created":      result.Created,
			"updated":      result.Updated,
			"failed":       result.Failed,
		}).Info("Processed catalog page")

		cursor = page.Cursor
		if cursor == "" {
			status := models.RunStatusSuccess
			if hadFailures {
				status = models.RunStatusPartial
			}
			logger.WithField("status", status).Info("Final page reached, finishing run")
			return r.finishRun(ctx, run.ID, status)
		}

		if time.Now().After(deadline) {
			logger.WithField("cursor", cursor).Info("Segment budget spent, enqueueing continuation")
			if err := r.publisher.Publish(ctx, &queue.ImportJob{
				RunID:         run.ID,
				IntegrationID: run.IntegrationID,
				Resume:        true,
			}); err != nil {
				return fmt.Errorf("failed to enqueue continuation: %w", err)
			}
			return nil
		}
	}
}

// finishRun records the terminal status and its metric.
func (r *Runner) finishRun(ctx context.Context, runID string, status models.RunStatus) error {
	if err := r.store.FinishRun(ctx, runID, status); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	r.metrics.RunsFinished.WithLabelValues(string(status)).Inc()
	return nil
}

// failRun is the catch-all: any run-level error ends the run FAILED
// with one recorded message.
func (r *Runner) failRun(ctx context.Context, runID string, cause error, logger *logrus.Entry) {
	logger.WithError(cause).Error("Import segment failed")

	if err := r.store.AppendRunErrors(ctx, runID, []string{truncateError(cause.Error())}); err != nil {
		logger.WithError(err).Error("Failed to record run error")
	}
	if err := r.store.FinishRun(ctx, runID, models.RunStatusFailed); err != nil {
		logger.WithError(err).Error("Failed to mark run as FAILED")
		return
	}
	r.metrics.RunsFinished.WithLabelValues(string(models.RunStatusFailed)).Inc()
}

func truncateError(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	return msg[:maxErrorLength] + "..."
}

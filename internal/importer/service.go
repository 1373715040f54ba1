package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omnipos/catalog-sync/internal/db"
	apperrors "github.com/omnipos/catalog-sync/internal/errors"
	"github.com/omnipos/catalog-sync/internal/metrics"
	"github.com/omnipos/catalog-sync/internal/models"
	"github.com/omnipos/catalog-sync/internal/queue"
)

// ImportServiceImpl implements the ImportService interface
type ImportServiceImpl struct {
	store     db.Store
	publisher queue.Publisher
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewImportService creates a new import service
func NewImportService(store db.Store, publisher queue.Publisher, m *metrics.Metrics, logger *logrus.Logger) ImportService {
	return &ImportServiceImpl{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// StartImport creates a PENDING run and hands it to the worker. Run
// exclusivity is enforced by the insert itself: a second start for the
// same integration surfaces as a RunInProgressError.
func (s *ImportServiceImpl) StartImport(ctx context.Context, integrationID string) (*models.ImportRun, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"integration_id": integrationID,
		"action":         "start_import",
	})

	integration, err := s.store.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	if !integration.Enabled {
		return nil, apperrors.NewValidationError(fmt.Sprintf("integration is disabled: %s", integrationID), nil)
	}

	run := &models.ImportRun{
		ID:            uuid.NewString(),
		IntegrationID: integration.ID,
		Status:        models.RunStatusPending,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	logger = logger.WithField("run_id", run.ID)
	logger.Info("Created import run")

	job := &queue.ImportJob{
		RunID:         run.ID,
		IntegrationID: integration.ID,
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		// The run would otherwise sit PENDING forever; close it out so
		// the integration is free to retry.
		logger.WithError(err).Error("Failed to enqueue import job, failing run")
		if appendErr := s.store.AppendRunErrors(ctx, run.ID, []string{fmt.Sprintf("failed to enqueue import job: %v", err)}); appendErr != nil {
			logger.WithError(appendErr).Error("Failed to record enqueue error")
		}
		if finishErr := s.store.FinishRun(ctx, run.ID, models.RunStatusFailed); finishErr != nil {
			logger.WithError(finishErr).Error("Failed to mark run as FAILED")
		}
		return nil, fmt.Errorf("failed to enqueue import job: %w", err)
	}

	s.metrics.RunsStarted.Inc()
	logger.Info("Import run enqueued")

	return run, nil
}

// ResumeImport re-enqueues a job for a run that is still in flight.
// Used by operators when a continuation message was lost.
func (s *ImportServiceImpl) ResumeImport(ctx context.Context, runID string) (*models.ImportRun, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status.IsTerminal() {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("run %s is already %s and cannot be resumed", runID, run.Status), nil)
	}

	job := &queue.ImportJob{
		RunID:         run.ID,
		IntegrationID: run.IntegrationID,
		Resume:        true,
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue resume job: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"cursor": run.Cursor,
	}).Info("Resume job enqueued")

	return run, nil
}

// AbortImport flips the abort flag; the runner observes it at its next
// per-batch checkpoint.
func (s *ImportServiceImpl) AbortImport(ctx context.Context, runID string) error {
	if err := s.store.RequestAbort(ctx, runID); err != nil {
		return err
	}

	s.logger.WithField("run_id", runID).Info("Abort requested")
	return nil
}

// GetRun gets a run by id
func (s *ImportServiceImpl) GetRun(ctx context.Context, runID string) (*models.ImportRun, error) {
	return s.store.GetRun(ctx, runID)
}

// ListRuns lists runs, optionally filtered by integration
func (s *ImportServiceImpl) ListRuns(ctx context.Context, integrationID string, limit, offset int) ([]*models.ImportRun, error) {
	return s.store.ListRuns(ctx, integrationID, limit, offset)
}

package importer

import (
	"context"

	"github.com/omnipos/catalog-sync/internal/models"
	"github.com/omnipos/catalog-sync/internal/square"
)

// CatalogClient is the slice of the upstream client the runner needs.
type CatalogClient interface {
	// ListCatalogPage fetches one page of catalog objects at the cursor
	ListCatalogPage(ctx context.Context, cursor string, pageSize int) (*square.CatalogPage, error)
}

// ClientFactory builds an upstream client for one integration's credentials.
type ClientFactory func(integration *models.Integration) CatalogClient

// ImportService defines the operator-facing import operations
type ImportService interface {
	// StartImport creates a PENDING run for the integration and enqueues its first job
	StartImport(ctx context.Context, integrationID string) (*models.ImportRun, error)

	// ResumeImport re-enqueues a job for a run that is still in flight
	ResumeImport(ctx context.Context, runID string) (*models.ImportRun, error)

	// AbortImport requests cooperative cancellation of a run
	AbortImport(ctx context.Context, runID string) error

	// GetRun gets a run by id
	GetRun(ctx context.Context, runID string) (*models.ImportRun, error)

	// ListRuns lists runs, optionally filtered by integration
	ListRuns(ctx context.Context, integrationID string, limit, offset int) ([]*models.ImportRun, error)
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/omnipos/catalog-sync/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

// Store defines the interface for database operations
type Store interface {
	// Integration operations
	GetIntegration(ctx context.Context, id string) (*models.Integration, error)
	ListIntegrations(ctx context.Context) ([]*models.Integration, error)
	SaveIntegration(ctx context.Context, integration *models.Integration) error
	DeleteIntegration(ctx context.Context, id string) error

	// Product operations
	UpsertProducts(ctx context.Context, products []*models.Product) (*models.UpsertResult, error)
	ListProducts(ctx context.Context, integrationID string, limit, offset int) ([]*models.Product, int64, error)
	GetProductByExternalID(ctx context.Context, source, itemID, variationID string) (*models.Product, error)

	// Import run operations
	CreateRun(ctx context.Context, run *models.ImportRun) error
	GetRun(ctx context.Context, id string) (*models.ImportRun, error)
	ListRuns(ctx context.Context, integrationID string, limit, offset int) ([]*models.ImportRun, error)
	ClaimRun(ctx context.Context, id string) (*models.ImportRun, error)
	ApplyRunProgress(ctx context.Context, id string, progress *models.RunProgress) error
	AppendRunErrors(ctx context.Context, id string, messages []string) error
	FinishRun(ctx context.Context, id string, status models.RunStatus) error
	RequestAbort(ctx context.Context, id string) error
	FindStalledRuns(ctx context.Context, threshold time.Duration) ([]*models.ImportRun, error)
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "internal/db/migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

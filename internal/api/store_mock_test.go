package api

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/omnipos/catalog-sync/internal/models"
)

// MockStore implements db.Store for handler tests.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Integration), args.Error(1)
}

func (m *MockStore) ListIntegrations(ctx context.Context) ([]*models.Integration, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Integration), args.Error(1)
}

func (m *MockStore) SaveIntegration(ctx context.Context, integration *models.Integration) error {
	args := m.Called(ctx, integration)
	return args.Error(0)
}

func (m *MockStore) DeleteIntegration(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) UpsertProducts(ctx context.Context, products []*models.Product) (*models.UpsertResult, error) {
	args := m.Called(ctx, products)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UpsertResult), args.Error(1)
}

func (m *MockStore) ListProducts(ctx context.Context, integrationID string, limit, offset int) ([]*models.Product, int64, error) {
	args := m.Called(ctx, integrationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Product), args.Get(1).(int64), args.Error(2)
}

func (m *MockStore) GetProductByExternalID(ctx context.Context, source, itemID, variationID string) (*models.Product, error) {
	args := m.Called(ctx, source, itemID, variationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockStore) CreateRun(ctx context.Context, run *models.ImportRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStore) GetRun(ctx context.Context, id string) (*models.ImportRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportRun), args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, integrationID string, limit, offset int) ([]*models.ImportRun, error) {
	args := m.Called(ctx, integrationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ImportRun), args.Error(1)
}

func (m *MockStore) ClaimRun(ctx context.Context, id string) (*models.ImportRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportRun), args.Error(1)
}

func (m *MockStore) ApplyRunProgress(ctx context.Context, id string, progress *models.RunProgress) error {
	args := m.Called(ctx, id, progress)
	return args.Error(0)
}

func (m *MockStore) AppendRunErrors(ctx context.Context, id string, messages []string) error {
	args := m.Called(ctx, id, messages)
	return args.Error(0)
}

func (m *MockStore) FinishRun(ctx context.Context, id string, status models.RunStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockStore) RequestAbort(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) FindStalledRuns(ctx context.Context, threshold time.Duration) ([]*models.ImportRun, error) {
	args := m.Called(ctx, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ImportRun), args.Error(1)
}

package importer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnipos/catalog-sync/internal/config"
	apperrors "github.com/omnipos/catalog-sync/internal/errors"
	"github.com/omnipos/catalog-sync/internal/metrics"
	"github.com/omnipos/catalog-sync/internal/models"
	"github.com/omnipos/catalog-sync/internal/queue"
	"github.com/omnipos/catalog-sync/internal/square"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	testIntegrationID = "int-1"
	testRunID         = "run-1"
)

// memStore is an in-memory Store covering the subset the runner and
// watchdog touch, with the same status-guard semantics as Postgres.
type memStore struct {
	mu           sync.Mutex
	integrations map[string]*models.Integration
	runs         map[string]*models.ImportRun
	upserts      func(products []*models.Product) (*models.UpsertResult, error)
}

func newMemStore() *memStore {
	return &memStore{
		integrations: map[string]*models.Integration{},
		runs:         map[string]*models.ImportRun{},
	}
}

func (s *memStore) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("integration", id)
	}
	copy := *integration
	return &copy, nil
}

func (s *memStore) ListIntegrations(ctx context.Context) ([]*models.Integration, error) {
	return nil, nil
}

func (s *memStore) SaveIntegration(ctx context.Context, integration *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[integration.ID] = integration
	return nil
}

func (s *memStore) DeleteIntegration(ctx context.Context, id string) error { return nil }

func (s *memStore) UpsertProducts(ctx context.Context, products []*models.Product) (*models.UpsertResult, error) {
	if s.upserts != nil {
		return s.upserts(products)
	}
	return &models.UpsertResult{Created: len(products)}, nil
}

func (s *memStore) ListProducts(ctx context.Context, integrationID string, limit, offset int) ([]*models.Product, int64, error) {
	return nil, 0, nil
}

func (s *memStore) GetProductByExternalID(ctx context.Context, source, itemID, variationID string) (*models.Product, error) {
	return nil, apperrors.NewResourceNotFoundError("product", itemID)
}

func (s *memStore) CreateRun(ctx context.Context, run *models.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.runs {
		if existing.IntegrationID == run.IntegrationID && !existing.Status.IsTerminal() {
			return apperrors.NewRunInProgressError(run.IntegrationID)
		}
	}
	run.Status = models.RunStatusPending
	run.LastProgressAt = time.Now()
	s.runs[run.ID] = run
	return nil
}

func (s *memStore) GetRun(ctx context.Context, id string) (*models.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("import run", id)
	}
	copy := *run
	return &copy, nil
}

func (s *memStore) ListRuns(ctx context.Context, integrationID string, limit, offset int) ([]*models.ImportRun, error) {
	return nil, nil
}

func (s *memStore) ClaimRun(ctx context.Context, id string) (*models.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("import run", id)
	}
	if run.Status != models.RunStatusPending && run.Status != models.RunStatusRunning {
		return nil, apperrors.NewRunNotClaimableError(id, string(run.Status))
	}
	run.Status = models.RunStatusRunning
	copy := *run
	return &copy, nil
}

func (s *memStore) ApplyRunProgress(ctx context.Context, id string, progress *models.RunProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return apperrors.NewResourceNotFoundError("import run", id)
	}
	run.Cursor = progress.Cursor
	run.ProcessedCount += progress.ProcessedDelta
	run.CreatedCount += progress.CreatedDelta
	run.UpdatedCount += progress.UpdatedDelta
	run.FailedCount += progress.FailedDelta
	run.LastProgressAt = time.Now()
	return nil
}

func (s *memStore) AppendRunErrors(ctx context.Context, id string, messages []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return apperrors.NewResourceNotFoundError("import run", id)
	}
	run.Errors = append(run.Errors, messages...)
	return nil
}

func (s *memStore) FinishRun(ctx context.Context, id string, status models.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return apperrors.NewResourceNotFoundError("import run", id)
	}
	if run.Status.IsTerminal() {
		return apperrors.NewRunNotClaimableError(id, string(run.Status))
	}
	run.Status = status
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

func (s *memStore) RequestAbort(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return apperrors.NewResourceNotFoundError("import run", id)
	}
	if run.Status.IsTerminal() {
		return apperrors.NewRunNotClaimableError(id, string(run.Status))
	}
	run.AbortRequested = true
	return nil
}

func (s *memStore) FindStalledRuns(ctx context.Context, threshold time.Duration) ([]*models.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stalled []*models.ImportRun
	for _, run := range s.runs {
		if run.Status == models.RunStatusRunning && time.Since(run.LastProgressAt) > threshold {
			copy := *run
			stalled = append(stalled, &copy)
		}
	}
	return stalled, nil
}

// fakeCatalog serves pre-built pages keyed by cursor. The empty cursor
// is the first page.
type fakeCatalog struct {
	pages map[string]*square.CatalogPage
	err   error
	calls int
}

func (f *fakeCatalog) ListCatalogPage(ctx context.Context, cursor string, pageSize int) (*square.CatalogPage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	page, ok := f.pages[cursor]
	if !ok {
		return &square.CatalogPage{}, nil
	}
	return page, nil
}

type capturePublisher struct {
	mu   sync.Mutex
	jobs []*queue.ImportJob
	err  error
}

func (p *capturePublisher) Publish(ctx context.Context, job *queue.ImportJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func catalogItem(id string, variations int) square.CatalogObject {
	item := square.CatalogObject{
		Type:    "ITEM",
		ID:      id,
		Version: 1,
		ItemData: &square.ItemData{
			Name: "Item " + id,
		},
	}
	for i := 0; i < variations; i++ {
		item.ItemData.Variations = append(item.ItemData.Variations, square.VariationObject{
			Type:    "ITEM_VARIATION",
			ID:      fmt.Sprintf("%s-v%d", id, i),
			Version: 1,
			VariationData: &square.VariationData{
				ItemID: id,
				Name:   fmt.Sprintf("Variation %d", i),
				SKU:    fmt.Sprintf("SKU-%s-%d", id, i),
				PriceMoney: &square.Money{
					Amount:   500,
					Currency: "USD",
				},
			},
		})
	}
	return item
}

func testImportConfig() *config.ImportConfig {
	return &config.ImportConfig{
		PageSize:      100,
		SegmentBudget: time.Minute,
		QueueName:     "test-import-jobs",
		Batch: config.BatchConfig{
			Size:       50,
			MaxRetries: 0,
			RetryDelay: time.Millisecond,
		},
	}
}

func newTestRunner(t *testing.T, store *memStore, catalog CatalogClient, publisher *capturePublisher, cfg *config.ImportConfig) *Runner {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	m := metrics.New(prometheus.NewRegistry())
	factory := func(integration *models.Integration) CatalogClient { return catalog }
	return NewRunner(store, factory, publisher, cfg, m, logger)
}

func seedRun(t *testing.T, store *memStore) *models.ImportRun {
	t.Helper()
	require.NoError(t, store.SaveIntegration(context.Background(), &models.Integration{
		ID:      testIntegrationID,
		Name:    "Test Store",
		Source:  "square",
		Enabled: true,
	}))
	run := &models.ImportRun{ID: testRunID, IntegrationID: testIntegrationID}
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run
}

func TestRunSegment_EmptyCatalogSucceedsWithZeroCounts(t *testing.T) {
	store := newMemStore()
	seedRun(t, store)

	catalog := &fakeCatalog{pages: map[string]*square.CatalogPage{}}
	publisher := &capturePublisher{}
	runner := newTestRunner(t, store, catalog, publisher, testImportConfig())

	err := runner.RunSegment(context.Background(), &queue.ImportJob{RunID: testRunID, IntegrationID: testIntegrationID})
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), testRunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 0, run.ProcessedCount)
	assert.Equal(t, 0, run.CreatedCount)
	assert.Equal(t, 0, run.UpdatedCount)
	assert.Equal(t, 0, run.FailedCount)
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, publisher.jobs)
}

func TestRunSegment_ProcessesAllPagesAndKeepsCountsConsistent(t *testing.T) {
	store := newMemStore()
	seedRun(t, store)

	catalog := &fakeCatalog{pages: map[string]*square.CatalogPage{
		"": {
			Objects: []square.CatalogObject{catalogItem("item-1", 2), catalogItem("item-2", 1)},
			Cursor:  "page-2",
		},
		"page-2": {
			Objects: []square.CatalogObject{catalogItem("item-3", 3)},
			Cursor:  "",
		},
	}}
	publisher := &capturePublisher{}
	runner := newTestRunner(t, store, catalog, publisher, testImportConfig())

	err := runner.RunSegment(context.Background(), &queue.ImportJob{RunID: testRunID, IntegrationID: testIntegrationID})
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), testRunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 6, run.ProcessedCount)
	assert.Equal(t, 6, run.CreatedCount)
	assert.Equal(t, run.CreatedCount+run.UpdatedCount+run.FailedCount, run.ProcessedCount)
	assert.Empty(t, run.Errors)
	assert.Empty(t, publisher.jobs)
}

func TestRunSegment_BudgetSpentEnqueuesContinuation(t *testing.T) {
	store := newMemStore()
	seedRun(t, store)

	catalog := &fakeCatalog{pages: map[string]*square.CatalogPage{
		"": {
			Objects: []square.CatalogObject{catalogItem("item-1", 1)},
			Cursor:  "page-2",
		},
		"page-2": {
			Objects: []square.CatalogObject{catalogItem("item-2", 1)},
			Cursor:  "page-3",
		},
		"page-3": {
			Objects: []square.CatalogObject{catalogItem("item-3", 1)},
			Cursor:  "",
		},
	}}
	publisher := &capturePublisher{}
	cfg := testImportConfig()
	cfg.SegmentBudget = -time.Second // every page exhausts the budget
	runner := newTestRunner(t, store, catalog, publisher, cfg)

	err := runner.RunSegment(context.Background(), &queue.ImportJob{RunID: testRunID, IntegrationID: testIntegrationID})
	require.NoError(t, err)

	// One page processed, run still in flight, continuation queued.
	run, err := store.GetRun(context.Background(), testRunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Equal(t, 1, run.ProcessedCount)
	assert.Equal(t, "page-2", run.Cursor)
	require.Len(t, publisher.jobs, 1)
	assert.Equal(t, testRunID, publisher.jobs[0].RunID)
	assert.True(t, publisher.jobs[0].Resume)

	// The continuation picks up at the stored cursor.
	err = runner.RunSegment(context.Background(), publisher.jobs[0])
	require.NoError(t, err)

	run, err = store.GetRun(context.Background(), testRunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Equal(t, 2, run.ProcessedCount)
	assert.Equal(t, "page-3", run.Cursor)
	require.Len(t, publisher.jobs, 2)

	// A roomier budget lets the final segment reach the empty cursor.
	cfg.SegmentBudget = time.Minute
	err = runner.RunSegment(context.Background(), publisher.jobs[1])
	require.NoError(t, err)

	run, err = store.GetRun(context.Background(), testRunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 3, run.ProcessedCount)
	assert.Equal(t, run.CreatedCount+run.UpdatedCount+run.FailedCount, run.ProcessedCount)
	require.Len(t, publisher.jobs, 2)
}

func TestRunSegment_AbortObservedAtBatchBoundary(t *testing.T) {
	store := newMemStore()
	seedRun(t, store)
	require.NoError(t, store.RequestAbort(context.Background(), testRunID))

	catalog := &fakeCatalog{pages: map[string]*square.CatalogPage{
		"": {
			Objects: []square.CatalogObject{catalogItem("item-1", 1)},
			Cursor:  "page-2",
		},
	}}
	publisher := &capturePublisher{}
	runner := newTestRunner(t, store, catalog, publisher, testImportConfig())

	err := runner.RunSegment(context.Background(), &queue.ImportJob{RunID: testRunID, IntegrationID: testIntegrationID})
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), testRunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusAborted, run.Status)
	assert.Equal(t, 0, run.ProcessedCount, "no page should be fetched after an abort request")
	assert.Equal(t, 0, catalog.calls)
}

func TestRunSegment_BatchErrorsEndAsPartial(t *testing.T) {
	store := newMemStore()
	seedRun(t, store)
	store.upserts = func(products []*models.Product) (*models.UpsertResult, error) {
		return nil, fmt.Errorf("deadlock detected")
	}

	catalog := &fakeCatalog{pages: map[string]*square.CatalogPage{
		"": {
			Objects: []square.CatalogObject{catalogItem("item-1", 2)},
			Cursor:  "",
		},
	}}
	publisher := &capturePublisher{}
	runner := newTestRunner(t, store, catalog, publisher, testImportConfig())

	err := runner.RunSegment(context.Background(), &queue.ImportJob{RunID: testRunID, IntegrationID: testIntegrationID})
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), testRunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, run.Status)
	assert.Equal(t, 2, run.FailedCount)
	assert.Equal(t, run.CreatedCount+run.UpdatedCount+run.FailedCount, run.ProcessedCount)
	require.NotEmpty(t, run.Errors)
	assert.Contains(t, run.Errors[0], "deadlock detected")
}

func TestRunSegment_ClientErrorFailsRun(t *testing.T) {
	store := newMemStore()
	seedRun(t, store)

	catalog := &fakeCatalog{err: fmt.Errorf("upstream unavailable")}
	publisher := &capturePublisher{}
	runner := newTestRunner(t, store, catalog, publisher, testImportConfig())

	err := runner.RunSegment(context.Background(), &queue.ImportJob{RunID: testRunID, IntegrationID: testIntegrationID})
	require.Error(t, err)

	run, getErr := store.GetRun(context.Background(), testRunID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotEmpty(t, run.Errors)
	assert.Contains(t, run.Errors[0], "upstream unavailable")
}

func TestRunSegment_DropsJobForTerminalRun(t *testing.T) {
	store := newMemStore()
	seedRun(t, store)
	require.NoError(t, store.FinishRun(context.Background(), testRunID, models.RunStatusSuccess))

	catalog := &fakeCatalog{}
	publisher := &capturePublisher{}
	runner := newTestRunner(t, store, catalog, publisher, testImportConfig())

	err := runner.RunSegment(context.Background(), &queue.ImportJob{RunID: testRunID, IntegrationID: testIntegrationID})
	assert.NoError(t, err, "jobs for terminal runs are dropped, not retried")
	assert.Equal(t, 0, catalog.calls)
}

func TestRunSegment_TruncatesLongErrorMessages(t *testing.T) {
	store := newMemStore()
	seedRun(t, store)
	long := make([]byte, 2*maxErrorLength)
	for i := range long {
		long[i] = 'x'
	}
	store.upserts = func(products []*models.Product) (*models.UpsertResult, error) {
		return nil, fmt.Errorf("%s", long)
	}

	catalog := &fakeCatalog{pages: map[string]*square.CatalogPage{
		"": {Objects: []square.CatalogObject{catalogItem("item-1", 1)}},
	}}
	publisher := &capturePublisher{}
	runner := newTestRunner(t, store, catalog, publisher, testImportConfig())

	err := runner.RunSegment(context.Background(), &queue.ImportJob{RunID: testRunID, IntegrationID: testIntegrationID})
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), testRunID)
	require.NoError(t, err)
	require.NotEmpty(t, run.Errors)
	assert.LessOrEqual(t, len(run.Errors[0]), maxErrorLength+3)
}

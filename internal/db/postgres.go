package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/omnipos/catalog-sync/internal/errors"
	"github.com/omnipos/catalog-sync/internal/models"
)

const uniqueViolation = "23505"

func (s *PostgresStore) SaveIntegration(ctx context.Context, integration *models.Integration) error {
	query := `
		INSERT INTO integrations (id, name, source, access_token, environment, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source = EXCLUDED.source,
			access_token = EXCLUDED.access_token,
			environment = EXCLUDED.environment,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		integration.ID,
		integration.Name,
		integration.Source,
		integration.AccessToken,
		integration.Environment,
		integration.Enabled,
	).Scan(&integration.CreatedAt, &integration.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save integration: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	query := `
		SELECT id, name, source, access_token, environment, enabled, created_at, updated_at
		FROM integrations WHERE id = $1`

	var integration models.Integration
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&integration.ID,
		&integration.Name,
		&integration.Source,
		&integration.AccessToken,
		&integration.Environment,
		&integration.Enabled,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("integration not found: %s", id), err)
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return &integration, nil
}

func (s *PostgresStore) ListIntegrations(ctx context.Context) ([]*models.Integration, error) {
	query := `
		SELECT id, name, source, access_token, environment, enabled, created_at, updated_at
		FROM integrations
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		var integration models.Integration
		if err := rows.Scan(
			&integration.ID,
			&integration.Name,
			&integration.Source,
			&integration.AccessToken,
			&integration.Environment,
			&integration.Enabled,
			&integration.CreatedAt,
			&integration.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan integration row: %w", err)
		}
		integrations = append(integrations, &integration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integration rows: %w", err)
	}

	return integrations, nil
}

func (s *PostgresStore) DeleteIntegration(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM integrations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewResourceNotFoundError("integration", id)
	}

	return nil
}

// UpsertProducts writes a batch of products keyed by
// (source, external_item_id, external_variation_id) and reports how
// many rows were inserted vs updated. xmax = 0 only holds for rows
// created by the current transaction.
func (s *PostgresStore) UpsertProducts(ctx context.Context, products []*models.Product) (*models.UpsertResult, error) {
	result := &models.UpsertResult{}
	if len(products) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (
			integration_id, source, external_item_id, external_variation_id,
			name, variation_name, sku, price_cents, currency, category,
			upstream_version, deleted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source, external_item_id, external_variation_id) DO UPDATE SET
			integration_id = EXCLUDED.integration_id,
			name = EXCLUDED.name,
			variation_name = EXCLUDED.variation_name,
			sku = EXCLUDED.sku,
			price_cents = EXCLUDED.price_cents,
			currency = EXCLUDED.currency,
			category = EXCLUDED.category,
			upstream_version = EXCLUDED.upstream_version,
			deleted = EXCLUDED.deleted,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, product := range products {
		var inserted bool
		err := stmt.QueryRowContext(ctx,
			product.IntegrationID,
			product.Source,
			product.ExternalItemID,
			product.ExternalVariationID,
			product.Name,
			product.VariationName,
			product.SKU,
			product.PriceCents,
			product.Currency,
			product.Category,
			product.UpstreamVersion,
			product.Deleted,
		).Scan(&product.ID, &inserted)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert product %s/%s: %w",
				product.ExternalItemID, product.ExternalVariationID, err)
		}
		if inserted {
			result.Created++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, integrationID string, limit, offset int) ([]*models.Product, int64, error) {
	baseQuery := `
		SELECT id, integration_id, source, external_item_id, external_variation_id,
			name, variation_name, sku, price_cents, currency, category,
			upstream_version, deleted, created_at, updated_at
		FROM products
		WHERE deleted = FALSE`

	args := []interface{}{}
	argCount := 0

	if integrationID != "" {
		argCount++
		baseQuery += fmt.Sprintf(" AND integration_id = $%d", argCount)
		args = append(args, integrationID)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_query", baseQuery)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	baseQuery += fmt.Sprintf(" ORDER BY name, variation_name LIMIT $%d OFFSET $%d", argCount+1, argCount+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.ID,
			&p.IntegrationID,
			&p.Source,
			&p.ExternalItemID,
			&p.ExternalVariationID,
			&p.Name,
			&p.VariationName,
			&p.SKU,
			&p.PriceCents,
			&p.Currency,
			&p.Category,
			&p.UpstreamVersion,
			&p.Deleted,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

func (s *PostgresStore) GetProductByExternalID(ctx context.Context, source, itemID, variationID string) (*models.Product, error) {
	query := `
		SELECT id, integration_id, source, external_item_id, external_variation_id,
			name, variation_name, sku, price_cents, currency, category,
			upstream_version, deleted, created_at, updated_at
		FROM products
		WHERE source = $1 AND external_item_id = $2 AND external_variation_id = $3`

	var p models.Product
	err := s.db.QueryRowContext(ctx, query, source, itemID, variationID).Scan(
		&p.ID,
		&p.IntegrationID,
		&p.Source,
		&p.ExternalItemID,
		&p.ExternalVariationID,
		&p.Name,
		&p.VariationName,
		&p.SKU,
		&p.PriceCents,
		&p.Currency,
		&p.Category,
		&p.UpstreamVersion,
		&p.Deleted,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewResourceNotFoundError("product", fmt.Sprintf("%s/%s/%s", source, itemID, variationID))
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}

// CreateRun inserts a PENDING run. The partial unique index on
// (integration_id) for non-terminal statuses makes the insert itself
// the exclusivity claim; a concurrent duplicate surfaces as a unique
// violation, not a silent second run.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ImportRun) error {
	run.Status = models.RunStatusPending

	query := `
		INSERT INTO import_runs (id, integration_id, status, cursor, started_at, last_progress_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING started_at, last_progress_at, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		run.ID,
		run.IntegrationID,
		run.Status,
		run.Cursor,
	).Scan(&run.StartedAt, &run.LastProgressAt, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return apperrors.NewRunInProgressError(run.IntegrationID)
		}
		return fmt.Errorf("failed to create import run: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.ImportRun, error) {
	query := runSelectColumns + ` FROM import_runs WHERE id = $1`

	run, err := s.scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewResourceNotFoundError("import run", id)
		}
		return nil, fmt.Errorf("failed to get import run: %w", err)
	}

	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, integrationID string, limit, offset int) ([]*models.ImportRun, error) {
	query := runSelectColumns + ` FROM import_runs`
	args := []interface{}{}
	argCount := 0

	if integrationID != "" {
		argCount++
		query += fmt.Sprintf(" WHERE integration_id = $%d", argCount)
		args = append(args, integrationID)
	}

	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", argCount+1, argCount+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ImportRun
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import runs: %w", err)
	}

	return runs, nil
}

// ClaimRun moves a run to RUNNING. The WHERE clause is the
// compare-and-swap: only a PENDING run, or a RUNNING run being resumed
// after a continuation, matches.
func (s *PostgresStore) ClaimRun(ctx context.Context, id string) (*models.ImportRun, error) {
	query := `
		UPDATE import_runs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $2)
		` + runReturningColumns

	run, err := s.scanRun(s.db.QueryRowContext(ctx, query, id, models.RunStatusRunning, models.RunStatusPending))
	if err != nil {
		if err == sql.ErrNoRows {
			current, getErr := s.GetRun(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, apperrors.NewRunNotClaimableError(id, string(current.Status))
		}
		return nil, fmt.Errorf("failed to claim import run: %w", err)
	}

	return run, nil
}

func (s *PostgresStore) ApplyRunProgress(ctx context.Context, id string, progress *models.RunProgress) error {
	query := `
		UPDATE import_runs
		SET cursor = $2,
			processed_count = processed_count + $3,
			created_count = created_count + $4,
			updated_count = updated_count + $5,
			failed_count = failed_count + $6,
			last_progress_at = NOW(),
			updated_at = NOW()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		id,
		progress.Cursor,
		progress.ProcessedDelta,
		progress.CreatedDelta,
		progress.UpdatedDelta,
		progress.FailedDelta,
	)
	if err != nil {
		return fmt.Errorf("failed to apply run progress: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewResourceNotFoundError("import run", id)
	}

	return nil
}

func (s *PostgresStore) AppendRunErrors(ctx context.Context, id string, messages []string) error {
	if len(messages) == 0 {
		return nil
	}

	query := `
		UPDATE import_runs
		SET errors = errors || to_jsonb($2::text[]),
			updated_at = NOW()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, pq.Array(messages))
	if err != nil {
		return fmt.Errorf("failed to append run errors: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewResourceNotFoundError("import run", id)
	}

	return nil
}

// FinishRun sets a terminal status. The status guard keeps a stale
// worker or the watchdog from overwriting a run that already finished.
func (s *PostgresStore) FinishRun(ctx context.Context, id string, status models.RunStatus) error {
	if !status.IsTerminal() {
		return apperrors.NewValidationError(fmt.Sprintf("status %s is not terminal", status), nil)
	}

	query := `
		UPDATE import_runs
		SET status = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`

	res, err := s.db.ExecContext(ctx, query, id, status, models.RunStatusPending, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finish import run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		current, getErr := s.GetRun(ctx, id)
		if getErr != nil {
			return getErr
		}
		return apperrors.NewRunNotClaimableError(id, string(current.Status))
	}

	return nil
}

func (s *PostgresStore) RequestAbort(ctx context.Context, id string) error {
	query := `
		UPDATE import_runs
		SET abort_requested = TRUE, updated_at = NOW()
		WHERE id = $1 AND status IN ($2, $3)`

	res, err := s.db.ExecContext(ctx, query, id, models.RunStatusPending, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to request abort: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		current, getErr := s.GetRun(ctx, id)
		if getErr != nil {
			return getErr
		}
		return apperrors.NewRunNotClaimableError(id, string(current.Status))
	}

	return nil
}

func (s *PostgresStore) FindStalledRuns(ctx context.Context, threshold time.Duration) ([]*models.ImportRun, error) {
	query := runSelectColumns + `
		FROM import_runs
		WHERE status = $1 AND last_progress_at < NOW() - $2::interval
		ORDER BY last_progress_at`

	interval := fmt.Sprintf("%d seconds", int(threshold.Seconds()))
	rows, err := s.db.QueryContext(ctx, query, models.RunStatusRunning, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to query stalled runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ImportRun
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stalled run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stalled runs: %w", err)
	}

	return runs, nil
}

const runSelectColumns = `
	SELECT id, integration_id, status, cursor, processed_count, created_count,
		updated_count, failed_count, errors, abort_requested, started_at,
		finished_at, last_progress_at, created_at, updated_at`

const runReturningColumns = `
	RETURNING id, integration_id, status, cursor, processed_count, created_count,
		updated_count, failed_count, errors, abort_requested, started_at,
		finished_at, last_progress_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanRun(row rowScanner) (*models.ImportRun, error) {
	var run models.ImportRun
	var errorsJSON []byte
	var finishedAt sql.NullTime

	if err := row.Scan(
		&run.ID,
		&run.IntegrationID,
		&run.Status,
		&run.Cursor,
		&run.ProcessedCount,
		&run.CreatedCount,
		&run.UpdatedCount,
		&run.FailedCount,
		&errorsJSON,
		&run.AbortRequested,
		&run.StartedAt,
		&finishedAt,
		&run.LastProgressAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if errorsJSON != nil {
		if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run errors: %w", err)
		}
	}

	return &run, nil
}

package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/omnipos/catalog-sync/internal/config"
	"github.com/omnipos/catalog-sync/internal/models"
)

// Upserter writes one chunk of products and reports how the rows landed.
type Upserter func(ctx context.Context, products []*models.Product) (*models.UpsertResult, error)

// Result aggregates the outcome of processing one page of products.
// Failed counts products in chunks that exhausted their retries; their
// errors are carried alongside rather than aborting the page.
type Result struct {
	Created int
	Updated int
	Failed  int
	Errors  []error
}

// Processor writes products in bounded chunks. Chunks are processed
// sequentially; a chunk that keeps failing is recorded and skipped so
// one bad batch cannot sink the whole page.
type Processor struct {
	config *config.BatchConfig
}

// NewProcessor creates a new batch processor
func NewProcessor(cfg *config.BatchConfig) *Processor {
	return &Processor{config: cfg}
}

// UpsertAll processes products in chunks via the upserter.
func (p *Processor) UpsertAll(ctx context.Context, products []*models.Product, upsert Upserter) (*Result, error) {
	result := &Result{}
	if len(products) == 0 {
		return result, nil
	}

	chunkSize := p.config.Size
	if chunkSize <= 0 {
		chunkSize = 50
	}

	for start := 0; start < len(products); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := start + chunkSize
		if end > len(products) {
			end = len(products)
		}
		chunk := products[start:end]

		upserted, err := p.upsertChunkWithRetry(ctx, chunk, upsert)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, err)
			continue
		}

		result.Created += upserted.Created
		result.Updated += upserted.Updated
	}

	return result, nil
}

// upsertChunkWithRetry retries one chunk with a linear backoff.
func (p *Processor) upsertChunkWithRetry(ctx context.Context, chunk []*models.Product, upsert Upserter) (*models.UpsertResult, error) {
	var lastErr error
	for retry := 0; retry <= p.config.MaxRetries; retry++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			result, err := upsert(ctx, chunk)
			if err == nil {
				return result, nil
			}

			lastErr = err
			if retry < p.config.MaxRetries {
				backoff := time.Duration(float64(p.config.RetryDelay) * float64(retry+1))
				time.Sleep(backoff)
			}
		}
	}

	return nil, fmt.Errorf("failed to upsert chunk of %d products after %d retries: %v",
		len(chunk), p.config.MaxRetries, lastErr)
}

package square

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/omnipos/catalog-sync/internal/config"
)

// RateLimitInfo holds information about Square API rate limits
type RateLimitInfo struct {
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Time
}

// Client represents a client for interacting with the Square catalog API
type Client struct {
	client  *http.Client
	baseURL string
	version string
	logger  *logrus.Logger

	rateLimitInfo RateLimitInfo

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// ClientOption allows configuring the Square client
type ClientOption func(*Client)

// WithRetryConfig configures retry behavior
func WithRetryConfig(maxRetries int, initialBackoff, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initialBackoff
		c.maxBackoff = maxBackoff
	}
}

// WithBaseURL overrides the API base URL, used by tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// NewClient creates a new Square client for the given access token
func NewClient(cfg *config.SquareConfig, token string, logger *logrus.Logger, opts ...ClientOption) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = 120 * time.Second

	client := &Client{
		client:         httpClient,
		baseURL:        cfg.APIBaseURL,
		version:        cfg.APIVersion,
		logger:         logger,
		maxRetries:     cfg.RateLimit.MaxRetries,
		initialBackoff: cfg.RateLimit.InitialBackoff,
		maxBackoff:     cfg.RateLimit.MaxBackoff,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// updateRateLimitInfo updates the rate limit information from response headers
func (c *Client) updateRateLimitInfo(resp *http.Response) {
	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		c.rateLimitInfo.Limit, _ = strconv.Atoi(limit)
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		c.rateLimitInfo.Remaining, _ = strconv.Atoi(remaining)
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if resetTime, err := strconv.ParseInt(reset, 10, 64); err == nil {
			c.rateLimitInfo.ResetTime = time.Unix(resetTime, 0)
		}
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if retrySeconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
			c.rateLimitInfo.RetryAfter = time.Now().Add(time.Duration(retrySeconds) * time.Second)
		}
	}
}

// sleep waits for the given duration unless the context is canceled first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// checkRateLimit waits out a known rate limit window before the next request
func (c *Client) checkRateLimit(ctx context.Context) error {
	now := time.Now()

	if c.rateLimitInfo.Remaining > 0 && c.rateLimitInfo.Remaining <= 2 {
		waitTime := time.Until(c.rateLimitInfo.ResetTime)
		if waitTime > 0 {
			c.logger.Warnf("Rate limit nearly exceeded. Waiting %v before next request", waitTime)
			if err := sleep(ctx, waitTime); err != nil {
				return err
			}
		}
	}

	if !c.rateLimitInfo.RetryAfter.IsZero() && now.Before(c.rateLimitInfo.RetryAfter) {
		waitTime := time.Until(c.rateLimitInfo.RetryAfter)
		c.logger.Warnf("Retry-After active. Waiting %v before next request", waitTime)
		if err := sleep(ctx, waitTime); err != nil {
			return err
		}
	}

	return nil
}

// doRequestWithBackoff performs an HTTP request with exponential backoff
func (c *Client) doRequestWithBackoff(req *http.Request, result interface{}) error {
	var lastErr error
	backoff := c.initialBackoff

	req.Header.Set("Square-Version", c.version)
	req.Header.Set("Accept", "application/json")

	ctx := req.Context()
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.checkRateLimit(ctx); err != nil {
			return err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = NewSquareError(0, "request failed", err)
			c.logger.Warnf("Request attempt %d failed: %v", attempt+1, err)
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = time.Duration(math.Min(float64(backoff*2), float64(c.maxBackoff)))
			continue
		}

		c.updateRateLimitInfo(resp)

		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resetTime := c.rateLimitInfo.ResetTime
			if !c.rateLimitInfo.RetryAfter.IsZero() {
				resetTime = c.rateLimitInfo.RetryAfter
			}
			waitTime := time.Until(resetTime)
			if waitTime < 0 {
				waitTime = backoff
			}
			c.logger.Warnf("Rate limit exceeded. Waiting %v before retry", waitTime)
			lastErr = NewRateLimitError(resetTime, c.rateLimitInfo.Limit, c.rateLimitInfo.Remaining)
			if err := sleep(ctx, waitTime); err != nil {
				return err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = NewSquareError(resp.StatusCode, "failed to read response body", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = NewSquareError(resp.StatusCode, string(body), nil)
			if resp.StatusCode >= 500 {
				if err := sleep(ctx, backoff); err != nil {
					return err
				}
				backoff = time.Duration(math.Min(float64(backoff*2), float64(c.maxBackoff)))
				continue
			}
			return lastErr
		}

		if result != nil {
			if err := json.Unmarshal(body, result); err != nil {
				return NewSquareError(resp.StatusCode, "failed to decode response", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ListCatalogPage fetches one page of catalog objects starting at the
// given cursor. An empty cursor starts from the beginning; the returned
// page's cursor is empty once the listing is exhausted.
func (c *Client) ListCatalogPage(ctx context.Context, cursor string, pageSize int) (*CatalogPage, error) {
	if pageSize <= 0 || pageSize > 100 {
		return nil, NewValidationError("pageSize", strconv.Itoa(pageSize))
	}

	query := url.Values{}
	query.Set("types", "ITEM")
	query.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	endpoint := c.baseURL + "/v2/catalog/list?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var page CatalogPage
	if err := c.doRequestWithBackoff(req, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

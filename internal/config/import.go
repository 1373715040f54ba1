package config

import "time"

// ImportConfig holds import orchestration configuration
type ImportConfig struct {
	PageSize      int
	SegmentBudget time.Duration
	QueueName     string
	Watchdog      WatchdogConfig
	Batch         BatchConfig
}

// WatchdogConfig holds stale-run detection configuration
type WatchdogConfig struct {
	Interval       time.Duration
	StallThreshold time.Duration
}

// BatchConfig holds upsert batch configuration
type BatchConfig struct {
	Size       int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() *ImportConfig {
	return &ImportConfig{
		PageSize:      100,
		SegmentBudget: 45 * time.Second,
		QueueName:     "catalog-import-jobs",
		Watchdog: WatchdogConfig{
			Interval:       time.Minute * 5,
			StallThreshold: time.Minute * 15,
		},
		Batch: BatchConfig{
			Size:       50,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
	}
}

package config

import "time"

// SquareConfig holds Square-specific configuration
type SquareConfig struct {
	AccessToken string
	APIBaseURL  string
	APIVersion  string
	RateLimit   RateLimitConfig
}

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultSquareConfig returns the default Square configuration
func DefaultSquareConfig() *SquareConfig {
	return &SquareConfig{
		APIBaseURL: "https://connect.squareup.com",
		APIVersion: "2024-06-04",
		RateLimit: RateLimitConfig{
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
		},
	}
}

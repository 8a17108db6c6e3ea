// Package search provides the HTTP client for the hosted event search index
// and the sync loop that keeps the index aligned with the events table.
package search

import (
	"errors"
	"time"
)

// Default values for client retry configuration.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 100 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultJitterFactor = 0.5 // 50% jitter
)

// Configuration errors.
var (
	ErrEmptyURL        = errors.New("search index URL cannot be empty")
	ErrEmptyAPIKey     = errors.New("search API key cannot be empty")
	ErrInvalidDelay    = errors.New("base delay must be positive")
	ErrInvalidMaxDelay = errors.New("max delay must be >= base delay")
	ErrInvalidJitter   = errors.New("jitter factor must be between 0 and 1")
)

// Config holds configuration for the search index client.
type Config struct {
	// URL is the base URL of the hosted index, without a trailing slash.
	URL string

	// APIKey authenticates every request via the X-API-Key header.
	APIKey string

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int

	// BaseDelay is the initial delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// JitterFactor is the fraction of delay to randomize (0.0 to 1.0).
	// A value of 0.5 means the actual delay will be in [delay*0.75, delay*1.25].
	JitterFactor float64
}

// DefaultConfig returns a Config with sensible default values.
// The URL and APIKey must be provided by the caller.
func DefaultConfig(url, apiKey string) Config {
	return Config{
		URL:          url,
		APIKey:       apiKey,
		Timeout:      DefaultTimeout,
		MaxRetries:   DefaultMaxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.URL == "" {
		return ErrEmptyURL
	}
	if c.APIKey == "" {
		return ErrEmptyAPIKey
	}
	if c.BaseDelay <= 0 {
		return ErrInvalidDelay
	}
	if c.MaxDelay < c.BaseDelay {
		return ErrInvalidMaxDelay
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return ErrInvalidJitter
	}
	return nil
}

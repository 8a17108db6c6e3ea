package search

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://index.example.com", "key123")

	if cfg.URL != "https://index.example.com" {
		t.Errorf("URL = %q, want %q", cfg.URL, "https://index.example.com")
	}
	if cfg.APIKey != "key123" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "key123")
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, DefaultMaxRetries)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig("https://index.example.com", "key123")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid",
			mutate:  func(*Config) {},
			wantErr: nil,
		},
		{
			name:    "empty URL",
			mutate:  func(c *Config) { c.URL = "" },
			wantErr: ErrEmptyURL,
		},
		{
			name:    "empty API key",
			mutate:  func(c *Config) { c.APIKey = "" },
			wantErr: ErrEmptyAPIKey,
		},
		{
			name:    "zero base delay",
			mutate:  func(c *Config) { c.BaseDelay = 0 },
			wantErr: ErrInvalidDelay,
		},
		{
			name:    "max delay below base delay",
			mutate:  func(c *Config) { c.MaxDelay = 50 * time.Millisecond },
			wantErr: ErrInvalidMaxDelay,
		},
		{
			name:    "jitter above one",
			mutate:  func(c *Config) { c.JitterFactor = 1.5 },
			wantErr: ErrInvalidJitter,
		},
		{
			name:    "negative jitter",
			mutate:  func(c *Config) { c.JitterFactor = -0.1 },
			wantErr: ErrInvalidJitter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

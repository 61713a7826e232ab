// Package config loads and resolves opsdesk-go configuration from the
// override chain: built-in defaults -> TOML config file -> environment
// variables -> CLI flags. CLI flags always win.
package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from TOML strings like "15s"
// or "5m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", string(text), err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Policy is the cache policy for one resource class.
type Policy struct {
	StaleTime Duration `toml:"stale_time"`
	GCTime    Duration `toml:"gc_time"`
}

// AuthConfig covers the token refresh exchange.
type AuthConfig struct {
	// RefreshTimeout bounds a single refresh exchange so callers queued
	// behind an outstanding refresh cannot wait forever.
	RefreshTimeout Duration `toml:"refresh_timeout"`
}

// CacheConfig covers the query cache: process-wide defaults plus the
// per-resource staleness policy table.
type CacheConfig struct {
	DefaultStaleTime Duration `toml:"default_stale_time"`
	DefaultGCTime    Duration `toml:"default_gc_time"`

	// RetryAttempts is the transient-error retry budget per fetch.
	RetryAttempts int `toml:"retry_attempts"`

	Tickets   Policy `toml:"tickets"`
	Users     Policy `toml:"users"`
	Dashboard Policy `toml:"dashboard"`
	Reports   Policy `toml:"reports"`
}

// Config is the full configuration file shape.
type Config struct {
	// BaseURL is the API root, e.g. "https://desk.example.com/api".
	// Required: there is no sensible default backend.
	BaseURL string `toml:"base_url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// CredentialsPath overrides where the credential database lives.
	CredentialsPath string `toml:"credentials_path"`

	Auth  AuthConfig  `toml:"auth"`
	Cache CacheConfig `toml:"cache"`
}

// DefaultConfig returns the built-in defaults. The policy values mirror how
// volatile each resource class is: ticket data changes constantly, reference
// data barely moves.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Auth: AuthConfig{
			RefreshTimeout: Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			DefaultStaleTime: Duration(30 * time.Second),
			DefaultGCTime:    Duration(5 * time.Minute),
			RetryAttempts:    2,
			Tickets: Policy{
				StaleTime: Duration(15 * time.Second),
				GCTime:    Duration(5 * time.Minute),
			},
			Users: Policy{
				StaleTime: Duration(5 * time.Minute),
				GCTime:    Duration(30 * time.Minute),
			},
			Dashboard: Policy{
				StaleTime: Duration(1 * time.Minute),
				GCTime:    Duration(5 * time.Minute),
			},
			Reports: Policy{
				StaleTime: Duration(5 * time.Minute),
				GCTime:    Duration(30 * time.Minute),
			},
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks a resolved config for problems a typo could cause.
func Validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("config: base_url is required (config file, OPSDESK_BASE_URL, or --base-url)")
	}

	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("config: invalid log_level %q (want debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Cache.RetryAttempts < 0 {
		return fmt.Errorf("config: cache.retry_attempts must not be negative")
	}

	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a TOML config file into a temp dir and returns its path.
func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
base_url = "https://desk.example.com/api"
log_level = "debug"

[auth]
refresh_timeout = "10s"

[cache]
default_stale_time = "45s"
retry_attempts = 1

[cache.tickets]
stale_time = "5s"
gc_time = "2m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://desk.example.com/api", cfg.BaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Auth.RefreshTimeout.Std())
	assert.Equal(t, 45*time.Second, cfg.Cache.DefaultStaleTime.Std())
	assert.Equal(t, 1, cfg.Cache.RetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.Cache.Tickets.StaleTime.Std())
	assert.Equal(t, 2*time.Minute, cfg.Cache.Tickets.GCTime.Std())

	// Untouched sections keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.Cache.Users.StaleTime.Std())
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
base_url = "https://desk.example.com/api"

[cache.tickets]
stale_time = "fifteen seconds"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestResolve_OverrideChain(t *testing.T) {
	path := writeConfig(t, `base_url = "https://file.example.com/api"`)

	// Env beats file.
	cfg, err := Resolve(
		EnvOverrides{ConfigPath: path, BaseURL: "https://env.example.com/api"},
		CLIOverrides{},
	)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/api", cfg.BaseURL)

	// CLI beats env.
	cfg, err = Resolve(
		EnvOverrides{ConfigPath: path, BaseURL: "https://env.example.com/api"},
		CLIOverrides{BaseURL: "https://cli.example.com/api"},
	)
	require.NoError(t, err)
	assert.Equal(t, "https://cli.example.com/api", cfg.BaseURL)
}

func TestResolve_TrimsTrailingSlash(t *testing.T) {
	path := writeConfig(t, `base_url = "https://desk.example.com/api/"`)

	cfg, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "https://desk.example.com/api", cfg.BaseURL)
}

func TestResolve_MissingBaseURL(t *testing.T) {
	path := writeConfig(t, `log_level = "info"`)

	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url is required")
}

func TestResolve_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Resolve(
		EnvOverrides{
			ConfigPath: filepath.Join(t.TempDir(), "nonexistent.toml"),
			BaseURL:    "https://env.example.com/api",
		},
		CLIOverrides{},
	)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Cache.Tickets.StaleTime.Std())
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://desk.example.com/api"
	cfg.LogLevel = "chatty"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log_level")
}

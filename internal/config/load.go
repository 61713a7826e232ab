package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// Application directory name used across all platforms.
const appName = "opsdesk"

// File names under the application directory.
const (
	configFileName      = "config.toml"
	credentialsFileName = "credentials.db"
)

// CLIOverrides holds values from command-line flags. Empty means "not set".
type CLIOverrides struct {
	ConfigPath string
	BaseURL    string
}

// Load reads and parses a TOML config file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. Zero-config first runs work as
// long as the base URL arrives via environment or flag.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.BaseURL != "" {
		cfg.BaseURL = env.BaseURL
	}

	if env.CredentialsPath != "" {
		cfg.CredentialsPath = env.CredentialsPath
	}

	if cli.BaseURL != "" {
		cfg.BaseURL = cli.BaseURL
	}

	// Trailing slashes would double up when request paths are appended.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = DefaultCredentialsPath()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("config: invalid base_url %q: %w", cfg.BaseURL, err)
	}

	return cfg, nil
}

// DefaultConfigDir returns the platform-specific directory for config and
// credential files. On Linux this respects XDG_CONFIG_HOME; on macOS it
// uses ~/Library/Application Support per Apple guidelines.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".config", appName)
	}
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), configFileName)
}

// DefaultCredentialsPath returns the default credential database location.
func DefaultCredentialsPath() string {
	return filepath.Join(DefaultConfigDir(), credentialsFileName)
}

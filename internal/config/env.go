package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "OPSDESK_CONFIG"
	EnvBaseURL     = "OPSDESK_BASE_URL"
	EnvCredentials = "OPSDESK_CREDENTIALS"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath      string // OPSDESK_CONFIG: override config file path
	BaseURL         string // OPSDESK_BASE_URL: API base URL
	CredentialsPath string // OPSDESK_CREDENTIALS: credential database path
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:      os.Getenv(EnvConfig),
		BaseURL:         os.Getenv(EnvBaseURL),
		CredentialsPath: os.Getenv(EnvCredentials),
	}
}

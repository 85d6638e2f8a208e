package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "DRIVEPI_CONFIG"
	EnvServerURL = "DRIVEPI_SERVER_URL"
	EnvTokenFile = "DRIVEPI_TOKEN_FILE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DRIVEPI_CONFIG
	ServerURL  string // DRIVEPI_SERVER_URL
	TokenFile  string // DRIVEPI_TOKEN_FILE
}

// ReadEnvOverrides reads the override variables from the environment.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServerURL),
		TokenFile:  os.Getenv(EnvTokenFile),
	}
}

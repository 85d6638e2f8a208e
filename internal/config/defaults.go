package config

// Default values, layer 0 of the override chain.
const (
	defaultServerURL      = "http://drivepi.local"
	defaultRequestTimeout = "30s"
	defaultLogLevel       = "warn"
	defaultTheme          = "auto"
)

// DefaultConfig returns a Config populated with default values. It is the
// starting point for TOML decoding so unset keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			ServerURL:      defaultServerURL,
			RequestTimeout: defaultRequestTimeout,
		},
		LoggingConfig: LoggingConfig{LogLevel: defaultLogLevel},
		DisplayConfig: DisplayConfig{Theme: defaultTheme},
	}
}

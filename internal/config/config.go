// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drivepi. Values resolve through a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

import "time"

// Config is the configuration parsed from a TOML file. All keys are flat
// top-level keys; the embedded structs only group them in code.
type Config struct {
	ServerConfig
	StorageConfig
	LoggingConfig
	DisplayConfig
}

// ServerConfig describes how to reach the Drive-PI backend.
type ServerConfig struct {
	// ServerURL is the API base URL; routes are appended as "/auth" etc.
	ServerURL      string `toml:"server_url"`
	RequestTimeout string `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// StorageConfig locates local state. Empty values mean the default path
// under the data directory.
type StorageConfig struct {
	TokenFile   string `toml:"token_file"`
	HistoryFile string `toml:"history_file"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// DisplayConfig controls the terminal browser.
type DisplayConfig struct {
	Theme string `toml:"theme"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not
// specified".
type CLIOverrides struct {
	ConfigPath string // --config
	ServerURL  string // --server
}

// Resolved is the final configuration after every override layer, with
// paths expanded and durations parsed.
type Resolved struct {
	Config

	// ConfigPath is the file the configuration was read from. The file may
	// not exist.
	ConfigPath string `toml:"-"`
	// Timeout is RequestTimeout parsed.
	Timeout time.Duration `toml:"-"`
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal, with "did you mean" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a config file if it exists and returns the defaults
// otherwise, so drivepi works without any config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies the override chain defaults -> config file -> environment
// -> CLI flags and returns the validated result with default paths filled
// in.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// Config path: CLI > env > default.
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

	if env.ServerURL != "" {
		cfg.ServerURL = env.ServerURL
	}

	if env.TokenFile != "" {
		cfg.TokenFile = env.TokenFile
	}

	if cli.ServerURL != "" {
		cfg.ServerURL = cli.ServerURL
	}

	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenPath()
	}

	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryPath()
	}

	cfg.TokenFile = expandTilde(cfg.TokenFile)
	cfg.HistoryFile = expandTilde(cfg.HistoryFile)

	// Overrides bypass Load's validation; check the merged result again.
	if err := errors.Join(Validate(cfg), ValidateResolved(cfg)); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("config validation: request_timeout: %w", err)
	}

	return &Resolved{Config: *cfg, ConfigPath: cfgPath, Timeout: timeout}, nil
}

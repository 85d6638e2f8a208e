package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Validation limits.
const (
	minRequestTimeout = 1 * time.Second
	maxRequestTimeout = 10 * time.Minute
)

var validThemes = map[string]bool{"auto": true, "dark": true, "light": true, "none": true}

// Validate checks the config values and returns every error found, so users
// can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.ServerConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateDisplay(&cfg.DisplayConfig)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only hold after overrides and
// default paths were applied.
func ValidateResolved(cfg *Config) error {
	var errs []error

	paths := []struct{ key, path string }{
		{"token_file", cfg.TokenFile},
		{"history_file", cfg.HistoryFile},
	}

	for _, p := range paths {
		key, path := p.key, p.path
		if path == "" {
			errs = append(errs, fmt.Errorf("%s: no path configured and no home directory to default to", key))
			continue
		}

		if !filepath.IsAbs(path) {
			errs = append(errs, fmt.Errorf("%s: must be absolute after expansion, got %q", key, path))
		}
	}

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if err := validateServerURL(s.ServerURL); err != nil {
		errs = append(errs, fmt.Errorf("server_url: %w", err))
	}

	d, err := time.ParseDuration(s.RequestTimeout)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("request_timeout: invalid duration %q", s.RequestTimeout))
	case d < minRequestTimeout || d > maxRequestTimeout:
		errs = append(errs, fmt.Errorf("request_timeout: must be between %s and %s, got %s",
			minRequestTimeout, maxRequestTimeout, d))
	}

	if strings.ContainsAny(s.UserAgent, "\r\n") {
		errs = append(errs, errors.New("user_agent: must not contain line breaks"))
	}

	return errs
}

func validateServerURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("must not contain a query or fragment: %q", raw)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	if _, err := ParseLogLevel(l.LogLevel); err != nil {
		return []error{fmt.Errorf("log_level: %w", err)}
	}

	return nil
}

func validateDisplay(d *DisplayConfig) []error {
	if !validThemes[d.Theme] {
		return []error{fmt.Errorf("theme: must be one of auto, dark, light, none; got %q", d.Theme)}
	}

	return nil
}

// ParseLogLevel maps a log_level value to an slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error; got %q", s)
	}
}

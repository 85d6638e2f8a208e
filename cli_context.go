package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/drivepi/drivepi-go/internal/api"
	"github.com/drivepi/drivepi-go/internal/config"
	"github.com/drivepi/drivepi-go/internal/session"
	"github.com/drivepi/drivepi-go/internal/tokenfile"
)

// CLIFlags holds the global flag values of one invocation.
type CLIFlags struct {
	ConfigPath string
	Server     string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built by the root command's PersistentPreRunE and handed to
// every subcommand through the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext stored by the root pre-run. A
// missing context is a wiring bug.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("drivepi: command run without CLI context")
	}

	return cc
}

// Statusf prints a progress message to stderr unless --quiet is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Err, format, args...)
	}
}

// NewDispatcher builds the backend client from the resolved config.
func (cc *CLIContext) NewDispatcher() *api.Dispatcher {
	httpClient := &http.Client{Timeout: cc.Cfg.Timeout}
	return api.NewDispatcher(cc.Cfg.ServerURL, httpClient, cc.Cfg.UserAgent, cc.Logger)
}

// NewSession opens the session backed by the configured token file. The
// stored token, if any, has not been validated yet.
func (cc *CLIContext) NewSession() (*session.Store, error) {
	return session.New(tokenfile.NewSlot(cc.Cfg.TokenFile), cc.NewDispatcher(), cc.Logger)
}

// NewSessionDiscardingCorrupt is NewSession for commands that overwrite or
// drop the stored token anyway. An unreadable token file is logged and
// removed instead of failing the command.
func (cc *CLIContext) NewSessionDiscardingCorrupt() (*session.Store, error) {
	store, err := cc.NewSession()
	if !errors.Is(err, tokenfile.ErrCorrupt) {
		return store, err
	}

	cc.Logger.Warn("discarding unreadable token file",
		slog.String("path", cc.Cfg.TokenFile), slog.String("error", err.Error()))

	if rmErr := tokenfile.Remove(cc.Cfg.TokenFile); rmErr != nil {
		return nil, rmErr
	}

	return cc.NewSession()
}

// RequireSession opens the session and validates the stored token.
func (cc *CLIContext) RequireSession(ctx context.Context) (*session.Store, error) {
	store, err := cc.NewSession()
	if err != nil {
		return nil, err
	}

	state, err := store.Validate(ctx)
	if err != nil {
		return nil, err
	}

	if state != session.Authenticated {
		return nil, errNotLoggedIn
	}

	return store, nil
}

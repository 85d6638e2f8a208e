package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// interruptContext returns a context canceled by the first SIGINT or
// SIGTERM, so pending requests are abandoned cleanly. A second signal exits
// immediately.
func interruptContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		var sig os.Signal

		select {
		case sig = <-sigCh:
		case <-ctx.Done():
			return
		}

		logger.Info("interrupted, canceling pending requests", slog.String("signal", sig.String()))
		cancel()

		select {
		case sig = <-sigCh:
			logger.Warn("second interrupt, exiting", slog.String("signal", sig.String()))
			os.Exit(130)
		case <-parent.Done():
		}
	}()

	return ctx
}

package main

import (
	"context"
	"log/slog"

	"github.com/drivepi/drivepi-go/internal/drives"
	"github.com/drivepi/drivepi-go/internal/history"
	"github.com/drivepi/drivepi-go/internal/session"
)

// DriveSession bundles what drive commands need: a validated session, the
// loaded drive registry, and the action history when it is available.
type DriveSession struct {
	Session  *session.Store
	Registry *drives.Registry
	History  *history.Store // nil when not requested or not openable
}

// NewDriveSession validates the stored token and loads the drive list. With
// withHistory set, the action history is opened and attached to the
// registry; a history that cannot be opened is logged and skipped.
func NewDriveSession(ctx context.Context, cc *CLIContext, withHistory bool) (*DriveSession, error) {
	store, err := cc.RequireSession(ctx)
	if err != nil {
		return nil, err
	}

	ds := &DriveSession{Session: store}

	var opts []drives.Option

	if withHistory {
		hist, err := history.Open(ctx, cc.Cfg.HistoryFile, cc.Logger)
		if err != nil {
			cc.Logger.Warn("action history unavailable", slog.String("error", err.Error()))
		} else {
			ds.History = hist
			opts = append(opts, drives.WithRecorder(hist))
		}
	}

	ds.Registry = drives.NewRegistry(store, cc.Logger, opts...)

	if err := ds.Registry.Load(ctx); err != nil {
		ds.Close()
		return nil, err
	}

	return ds, nil
}

// Close releases the history database.
func (ds *DriveSession) Close() {
	if ds.History != nil {
		ds.History.Close()
	}
}

package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drivepi/drivepi-go/internal/browser"
	"github.com/drivepi/drivepi-go/internal/session"
)

// ErrSessionExpired is returned by Run when the session lost its token
// while the browser was open.
var ErrSessionExpired = errors.New("session expired — run 'drivepi login' again")

// Session is the part of *session.Store the browser observes.
type Session interface {
	OnChange(fn func(session.State))
	Validate(ctx context.Context) (session.State, error)
	Watch(ctx context.Context) error
}

// Run shows the browser until the user quits, ctx ends, or the session is
// lost. A token removed by another process ends the browser too.
func Run(ctx context.Context, sess Session, registry Registry, nav *browser.Navigator, logger *slog.Logger, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(NewModel(ctx, registry, nav, opts), tea.WithContext(ctx), tea.WithAltScreen())

	sess.OnChange(sessionListener(ctx, sess, program.Send, logger))

	go func() {
		if err := sess.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("token file not watched", slog.String("error", err.Error()))
		}
	}()

	final, err := program.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("tui: %w", err)
	}

	if m, ok := final.(Model); ok && m.Expired() {
		return ErrSessionExpired
	}

	return nil
}

// sessionListener follows the session for the browser. A lost session ends
// the program; a token adopted from another process is validated at once,
// which ends the program too when the host rejects it.
func sessionListener(ctx context.Context, sess Session, send func(tea.Msg), logger *slog.Logger) func(session.State) {
	return func(state session.State) {
		switch state {
		case session.Unauthenticated:
			send(sessionEndedMsg{})
		case session.Checking:
			go func() {
				if _, err := sess.Validate(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("validating replaced token failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

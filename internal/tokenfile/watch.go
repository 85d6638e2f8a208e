package tokenfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the token file for changes made by other processes and
// calls onChange with the slot's current token ("" when removed) after each
// change. It watches the parent directory because Save replaces the file by
// rename. Blocks until ctx is canceled or the watcher fails.
//
// Unreadable intermediate states (a half-written file from a foreign
// writer) are logged and skipped.
func (s *Slot) Watch(ctx context.Context, logger *slog.Logger, onChange func(token string)) error {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tokenfile: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("tokenfile: watching %s: %w", dir, err)
	}

	name := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != name || ev.Op == fsnotify.Chmod {
				continue
			}

			token, loadErr := s.Load()
			if loadErr != nil {
				logger.Warn("token file changed but could not be read",
					slog.String("path", s.path),
					slog.String("error", loadErr.Error()),
				)

				continue
			}

			onChange(token)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			return fmt.Errorf("tokenfile: watcher: %w", werr)
		}
	}
}

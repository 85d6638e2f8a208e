package main

import (
	"errors"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/drivepi/drivepi-go/internal/browser"
	"github.com/drivepi/drivepi-go/internal/tui"
)

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Open the interactive drive and file browser",
		Long: "Open the interactive browser. The left pane lists drives and runs mount, " +
			"unmount and share actions; the right pane browses the selected mounted drive.",
		Args: cobra.NoArgs,
		RunE: runBrowse,
	}
}

// stdoutIsTTY reports whether stdout is an interactive terminal.
var stdoutIsTTY = func() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func runBrowse(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if !stdoutIsTTY() || !stdinIsTTY() {
		return errors.New("browse needs an interactive terminal; use 'drivepi drives' and 'drivepi ls' in scripts")
	}

	ds, err := NewDriveSession(ctx, cc, true)
	if err != nil {
		return err
	}
	defer ds.Close()

	nav := browser.New(ds.Session, cc.Logger)

	opts := tui.Options{
		Theme:    cc.Cfg.Theme,
		Language: displayLanguage(),
	}

	return tui.Run(ctx, ds.Session, ds.Registry, nav, cc.Logger, opts)
}

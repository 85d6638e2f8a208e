package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as annotated TOML to w,
// for "drivepi config show".
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	ew.printf("# server\n")
	ew.printf("server_url      = %q\n", r.ServerURL)
	ew.printf("request_timeout = %q\n", r.RequestTimeout)

	if r.UserAgent != "" {
		ew.printf("user_agent      = %q\n", r.UserAgent)
	}

	ew.printf("\n# storage\n")
	ew.printf("token_file      = %q\n", r.TokenFile)
	ew.printf("history_file    = %q\n", r.HistoryFile)

	ew.printf("\n# logging\n")
	ew.printf("log_level       = %q\n", r.LogLevel)

	ew.printf("\n# display\n")
	ew.printf("theme           = %q\n", r.Theme)

	return ew.err
}

// errWriter keeps the first write error; later writes are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

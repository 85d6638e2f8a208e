package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drivepi/drivepi-go/testutil"
)

// testEnv isolates one CLI invocation from the user's environment.
type testEnv struct {
	t    *testing.T
	host *testutil.FakeHost
	srv  *httptest.Server
	home string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	host := testutil.NewFakeHost()
	srv := httptest.NewServer(host)
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("DRIVEPI_CONFIG", "")
	t.Setenv("DRIVEPI_TOKEN_FILE", "")
	t.Setenv("DRIVEPI_SERVER_URL", srv.URL)

	oldStdin, oldTTY := stdin, stdinIsTTY

	t.Cleanup(func() {
		stdin, stdinIsTTY = oldStdin, oldTTY
	})

	stdin = strings.NewReader("")
	stdinIsTTY = func() bool { return false }

	return &testEnv{t: t, host: host, srv: srv, home: home}
}

func (e *testEnv) tokenPath() string {
	return filepath.Join(e.home, "data", "drivepi", "token.json")
}

// run executes the CLI with args and returns stdout, stderr and the error.
func (e *testEnv) run(args ...string) (string, string, error) {
	e.t.Helper()

	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), errOut.String(), err
}

// runWithInput is run with stdin set to input.
func (e *testEnv) runWithInput(input string, args ...string) (string, string, error) {
	e.t.Helper()

	stdin = io.Reader(strings.NewReader(input))

	return e.run(args...)
}

func (e *testEnv) login() {
	e.t.Helper()

	_, _, err := e.runWithInput(testutil.FakePassword+"\n", "login", "-u", testutil.FakeUser)
	require.NoError(e.t, err)
}

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepi/drivepi-go/internal/session"
	"github.com/drivepi/drivepi-go/internal/tokenfile"
	"github.com/drivepi/drivepi-go/testutil"
)

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)

	_, stderr, err := env.runWithInput(testutil.FakePassword+"\n", "login", "--username", testutil.FakeUser)
	require.NoError(t, err)

	assert.Contains(t, stderr, "Logged in as admin.")

	token, err := tokenfile.Load(env.tokenPath())
	require.NoError(t, err)
	assert.Equal(t, testutil.FakeToken, token)
}

func TestLogin_PromptsForUsername(t *testing.T) {
	env := newTestEnv(t)

	_, stderr, err := env.runWithInput(testutil.FakeUser+"\n"+testutil.FakePassword+"\n", "login")
	require.NoError(t, err)

	assert.Contains(t, stderr, "Username: ")
	assert.Contains(t, stderr, "Logged in as admin.")
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.runWithInput("wrong\n", "login", "-u", testutil.FakeUser)
	require.ErrorIs(t, err, session.ErrBadCredentials)
	assert.Equal(t, "incorrect credentials", err.Error())

	_, statErr := os.Stat(env.tokenPath())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no token may be saved")
}

func TestLogin_ServerUnreachable(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Close()

	_, _, err := env.runWithInput(testutil.FakePassword+"\n", "login", "-u", testutil.FakeUser)
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrBadCredentials)
}

func TestLogin_TerminalPassword(t *testing.T) {
	env := newTestEnv(t)

	oldRead := readPassword
	t.Cleanup(func() { readPassword = oldRead })

	stdinIsTTY = func() bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte(testutil.FakePassword), nil }

	_, stderr, err := env.run("login", "-u", testutil.FakeUser)
	require.NoError(t, err)

	assert.Contains(t, stderr, "Password: ")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	_, stderr, err := env.run("logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged out.")

	_, statErr := os.Stat(env.tokenPath())
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	assert.Empty(t, env.host.Token(), "server-side token must be invalidated")

	_, stderr, err = env.run("logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Not logged in.")
}

func TestLogout_ServerDownStillClearsLocally(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	env.srv.Close()

	_, _, err := env.run("logout")
	require.NoError(t, err)

	_, statErr := os.Stat(env.tokenPath())
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestLogoutAndLogin_CorruptTokenFile(t *testing.T) {
	env := newTestEnv(t)

	writeCorrupt := func() {
		require.NoError(t, os.MkdirAll(filepath.Dir(env.tokenPath()), 0o700))
		require.NoError(t, os.WriteFile(env.tokenPath(), []byte("not json"), 0o600))
	}

	writeCorrupt()

	_, stderr, err := env.run("logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Not logged in.")

	_, statErr := os.Stat(env.tokenPath())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "corrupt token file must be removed")

	writeCorrupt()

	_, _, err = env.runWithInput(testutil.FakePassword+"\n", "login", "-u", testutil.FakeUser)
	require.NoError(t, err)

	tok, err := tokenfile.Load(env.tokenPath())
	require.NoError(t, err)
	assert.Equal(t, testutil.FakeToken, tok)
}

func TestStatus_CorruptTokenFileReported(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(env.tokenPath()), 0o700))
	require.NoError(t, os.WriteFile(env.tokenPath(), []byte(`{"token":"old"}`), 0o600))

	_, _, err := env.run("status")
	require.ErrorIs(t, err, tokenfile.ErrCorrupt)

	_, statErr := os.Stat(env.tokenPath())
	assert.NoError(t, statErr, "status must not touch the token file")
}

func TestStatus_LoggedIn(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	stdout, _, err := env.run("status")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Server:  "+env.srv.URL)
	assert.Contains(t, stdout, "Session: logged in")
	assert.Contains(t, stdout, "Expires: ")
}

func TestStatus_JSON(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	stdout, _, err := env.run("status", "--json")
	require.NoError(t, err)

	var out statusOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	assert.Equal(t, "authenticated", out.State)
	assert.Equal(t, env.srv.URL, out.Server)
	assert.Equal(t, env.tokenPath(), out.TokenFile)
	require.NotNil(t, out.ExpiresAt)
	assert.Equal(t, testutil.FakeExpiry, out.ExpiresAt.UnixMilli())
}

func TestStatus_RevokedTokenIsCleared(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	env.host.SetToken("someone-else")

	stdout, _, err := env.run("status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Session: not logged in")

	_, statErr := os.Stat(env.tokenPath())
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestPromptLine(t *testing.T) {
	var prompt strings.Builder

	line, err := promptLine(bufio.NewReader(strings.NewReader("  alice  \nrest")), &prompt, "Username: ")
	require.NoError(t, err)

	assert.Equal(t, "alice", line)
	assert.Equal(t, "Username: ", prompt.String())
}

func TestPromptLine_LastLineWithoutNewline(t *testing.T) {
	line, err := promptLine(bufio.NewReader(strings.NewReader("bob")), &strings.Builder{}, "")
	require.NoError(t, err)
	assert.Equal(t, "bob", line)
}

func TestPromptLine_EmptyInput(t *testing.T) {
	_, err := promptLine(bufio.NewReader(strings.NewReader("")), &strings.Builder{}, "")
	assert.Error(t, err)
}

func TestPromptPassword_PipedKeepsSpaces(t *testing.T) {
	oldTTY := stdinIsTTY
	t.Cleanup(func() { stdinIsTTY = oldTTY })

	stdinIsTTY = func() bool { return false }

	pw, err := promptPassword(bufio.NewReader(strings.NewReader(" p a s s \r\n")), &strings.Builder{})
	require.NoError(t, err)
	assert.Equal(t, " p a s s ", pw)
}

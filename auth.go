package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/drivepi/drivepi-go/internal/session"
)

// Terminal seams, replaced in tests.
var (
	readPassword = term.ReadPassword
	stdinIsTTY   = func() bool { return isatty.IsTerminal(os.Stdin.Fd()) }
	stdin        = io.Reader(os.Stdin)
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the Drive-PI host",
		Long: "Prompts for the username (unless --username is given) and the password. " +
			"When stdin is not a terminal, the password is read from the first line of stdin.",
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().StringP("username", "u", "", "username (prompted when omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate and remove the saved session token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the saved session is still valid",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	username, err := cmd.Flags().GetString("username")
	if err != nil {
		return err
	}

	reader := bufio.NewReader(stdin)

	if username == "" {
		username, err = promptLine(reader, cc.Err, "Username: ")
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
	}

	password, err := promptPassword(reader, cc.Err)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	store, err := cc.NewSessionDiscardingCorrupt()
	if err != nil {
		return err
	}

	if err := store.Login(ctx, username, password); err != nil {
		if errors.Is(err, session.ErrBadCredentials) {
			return session.ErrBadCredentials
		}

		return err
	}

	cc.Statusf("Logged in as %s.\n", username)

	return nil
}

// promptLine prints prompt to w and reads one trimmed line.
func promptLine(reader *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)

	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

// promptPassword reads the password without echo from a terminal, or as a
// plain line otherwise so scripts can pipe it in.
func promptPassword(reader *bufio.Reader, w io.Writer) (string, error) {
	if !stdinIsTTY() {
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}

		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(w, "Password: ")

	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)

	if err != nil {
		return "", err
	}

	return string(pw), nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	store, err := cc.NewSessionDiscardingCorrupt()
	if err != nil {
		return err
	}

	wasLoggedIn := store.State() != session.Unauthenticated

	if err := store.Logout(cmd.Context()); err != nil {
		return err
	}

	if wasLoggedIn {
		cc.Statusf("Logged out.\n")
	} else {
		cc.Statusf("Not logged in.\n")
	}

	return nil
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Server    string     `json:"server"`
	State     string     `json:"state"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	TokenFile string     `json:"token_file"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	store, err := cc.NewSession()
	if err != nil {
		return err
	}

	state, err := store.Validate(cmd.Context())
	if err != nil {
		return err
	}

	out := statusOutput{
		Server:    cc.Cfg.ServerURL,
		State:     state.String(),
		TokenFile: cc.Cfg.TokenFile,
	}

	if exp := store.Expiry(); !exp.IsZero() {
		out.ExpiresAt = &exp
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	fmt.Fprintf(cc.Out, "Server:  %s\n", out.Server)

	switch state {
	case session.Authenticated:
		fmt.Fprintln(cc.Out, "Session: logged in")
	default:
		fmt.Fprintln(cc.Out, "Session: not logged in")
	}

	if out.ExpiresAt != nil {
		fmt.Fprintf(cc.Out, "Expires: %s\n", out.ExpiresAt.Local().Format(time.RFC1123))
	}

	return nil
}

// Thin wrapper around session.Login that saves a token for live E2E runs
// into .testdata/token.json.
//
// Usage: go run ./cmd/integration-bootstrap --server http://drivepi.local:5000 --username admin
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/term"

	"github.com/drivepi/drivepi-go/internal/api"
	"github.com/drivepi/drivepi-go/internal/session"
	"github.com/drivepi/drivepi-go/internal/tokenfile"
	"github.com/drivepi/drivepi-go/testutil"
)

func main() {
	server := flag.String("server", os.Getenv(testutil.EnvLiveServer), "Drive-PI base URL")
	username := flag.String("username", "admin", "account to log in as")
	flag.Parse()

	if *server == "" {
		fmt.Fprintf(os.Stderr, "--server or %s is required\n", testutil.EnvLiveServer)
		os.Exit(1)
	}

	password := os.Getenv("DRIVEPI_E2E_PASSWORD")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")

		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			fmt.Fprintf(os.Stderr, "reading password: %v\n", err)
			os.Exit(1)
		}

		password = string(raw)
	}

	dir := filepath.Join(testutil.FindModuleRoot("."), ".testdata")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "creating %s: %v\n", dir, err)
		os.Exit(1)
	}

	logger := slog.Default()
	dispatcher := api.NewDispatcher(*server, &http.Client{Timeout: 30 * time.Second}, "", logger)

	store, err := session.New(tokenfile.NewSlot(filepath.Join(dir, testutil.TestTokenFile)), dispatcher, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening token file: %v\n", err)
		os.Exit(1)
	}

	if err := store.Login(context.Background(), *username, password); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Login successful. Token saved to %s (expires %s).\n",
		filepath.Join(dir, testutil.TestTokenFile), store.Expiry().Format(time.RFC3339))
}

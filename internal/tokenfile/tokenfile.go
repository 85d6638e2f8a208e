// Package tokenfile is the persistent slot for the session token: a small
// JSON file holding one key, written atomically with owner-only
// permissions. A missing file means "logged out".
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// Key is the single key stored in the slot.
const Key = "drivepi_token"

// ErrCorrupt is returned by Load when the file exists but holds no usable
// token. Callers that replace or drop the token anyway may remove the file.
var ErrCorrupt = errors.New("tokenfile: unreadable token file")

// file is the on-disk format.
type file struct {
	Token string `json:"drivepi_token"`
}

// Load reads the token stored at path. Returns "" and no error if the file
// does not exist.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf file
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("%w: decoding %s: %w", ErrCorrupt, path, err)
	}

	if tf.Token == "" {
		return "", fmt.Errorf("%w: %s has no %s key", ErrCorrupt, path, Key)
	}

	return tf.Token, nil
}

// Save writes the token to path atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path, token string) error {
	if token == "" {
		return errors.New("tokenfile: refusing to save empty token")
	}

	data, err := json.MarshalIndent(file{Token: token}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}

// Slot binds the package functions to one path. It satisfies the token
// storage interface consumed by the session package.
type Slot struct {
	path string
}

// NewSlot returns a Slot stored at path.
func NewSlot(path string) *Slot {
	return &Slot{path: path}
}

// Path returns the file backing the slot.
func (s *Slot) Path() string {
	return s.path
}

// Load returns the stored token, or "" when the slot is empty.
func (s *Slot) Load() (string, error) {
	return Load(s.path)
}

// Store writes token into the slot.
func (s *Slot) Store(token string) error {
	return Save(s.path, token)
}

// Clear empties the slot.
func (s *Slot) Clear() error {
	return Remove(s.path)
}

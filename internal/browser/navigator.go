// Package browser tracks the folder being viewed on the selected drive and
// fetches its listing.
//
// Every mutation returns the resulting Key and whether it changed. A changed
// key means the listing must be fetched again; the caller decides when, and
// Fetch drops any response whose key is no longer current.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/drivepi/drivepi-go/internal/api"
)

// ErrStale is returned by Fetch when navigation moved on while the request
// was in flight. The response was discarded.
var ErrStale = errors.New("browser: listing is stale")

// Dispatcher sends authenticated requests. *session.Store satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, method string, route api.Route, body, out any) error
}

// Key identifies one listing: a folder on a specific mount of a drive.
type Key struct {
	DriveUUID string
	Mount     string
	Path      string
}

// Fetchable reports whether a listing can be requested for the key.
func (k Key) Fetchable() bool {
	return k.DriveUUID != "" && k.Mount != ""
}

// Listing is the content of one folder.
type Listing struct {
	Files   []api.DriveFile
	Folders []api.DriveFolder
}

// Navigator is safe for concurrent use. The mutex is never held across a
// network call.
type Navigator struct {
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	drive   *api.DriveItem
	path    string
	listing Listing
	listed  Key // key the current listing belongs to
}

// New creates a Navigator with no drive selected.
func New(dispatcher Dispatcher, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Navigator{dispatcher: dispatcher, logger: logger}
}

// Key returns the current key.
func (n *Navigator) Key() Key {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.keyLocked()
}

func (n *Navigator) keyLocked() Key {
	if n.drive == nil {
		return Key{Path: n.path}
	}

	return Key{DriveUUID: n.drive.UUID, Mount: n.drive.MountPoint(), Path: n.path}
}

// Path returns the current path relative to the drive's mount point.
func (n *Navigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.path
}

// Drive returns the selected drive.
func (n *Navigator) Drive() (api.DriveItem, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.drive == nil {
		return api.DriveItem{}, false
	}

	return *n.drive, true
}

// Listing returns the most recently applied listing and the key it belongs
// to. Before the first successful fetch it is empty.
func (n *Navigator) Listing() (Listing, Key) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.listing, n.listed
}

// mutate applies fn under the lock and reports the new key.
func (n *Navigator) mutate(fn func()) (Key, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	before := n.keyLocked()
	fn()
	after := n.keyLocked()

	return after, after != before
}

// SelectDrive makes drive the browsed drive. A different drive, or the same
// drive on a different mount point, resets the path to the root.
func (n *Navigator) SelectDrive(drive api.DriveItem) (Key, bool) {
	return n.mutate(func() {
		if n.drive == nil || n.drive.UUID != drive.UUID || n.drive.MountPoint() != drive.MountPoint() {
			n.path = ""
		}

		d := drive
		n.drive = &d
	})
}

// ClearDrive deselects the drive and resets the path.
func (n *Navigator) ClearDrive() (Key, bool) {
	return n.mutate(func() {
		n.drive = nil
		n.path = ""
	})
}

// MoveHome goes to the root of the drive.
func (n *Navigator) MoveHome() (Key, bool) {
	return n.mutate(func() {
		n.path = ""
	})
}

// MoveBack goes to the parent folder. At the root it does nothing.
func (n *Navigator) MoveBack() (Key, bool) {
	return n.mutate(func() {
		n.path = Parent(n.path)
	})
}

// MoveForward enters the named child folder.
func (n *Navigator) MoveForward(folder string) (Key, bool) {
	return n.mutate(func() {
		n.path = Join(n.path, folder)
	})
}

// Fetch requests the listing for key and applies it if key is still
// current when the response arrives. It does nothing for a key without a
// drive or mount point. On failure the previous listing is kept.
func (n *Navigator) Fetch(ctx context.Context, key Key) (Listing, error) {
	if !key.Fetchable() {
		return Listing{}, nil
	}

	var resp api.FilesResponse

	req := api.ListRequest{Path: key.Path, DrivePath: key.Mount}
	if err := n.dispatcher.Dispatch(ctx, http.MethodPost, api.RouteFiles, req, &resp); err != nil {
		n.logger.Warn("listing fetch failed",
			slog.String("drive", key.DriveUUID),
			slog.String("path", key.Path),
			slog.Int("status", api.StatusOf(err)),
			slog.String("error", err.Error()),
		)

		return Listing{}, fmt.Errorf("browser: listing %q: %w", key.Path, err)
	}

	listing := Listing{Files: resp.Files, Folders: resp.Folders}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.keyLocked() != key {
		n.logger.Debug("discarding stale listing",
			slog.String("drive", key.DriveUUID),
			slog.String("path", key.Path),
		)

		return Listing{}, ErrStale
	}

	n.listing = listing
	n.listed = key

	return listing, nil
}

// Refresh fetches the listing for the current key.
func (n *Navigator) Refresh(ctx context.Context) (Listing, error) {
	return n.Fetch(ctx, n.Key())
}

// Breadcrumbs splits the current path into its folder names. The root has
// no breadcrumbs.
func (n *Navigator) Breadcrumbs() []string {
	return Segments(n.Path())
}

// Join appends a folder name to a navigation path.
func Join(path, folder string) string {
	if path == "" {
		return folder
	}

	return path + "/" + folder
}

// Parent drops the last segment of a navigation path. The parent of a
// top-level folder and of the root is the root.
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}

	return path[:i]
}

// Segments splits a navigation path into folder names, ignoring empty
// segments.
func Segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}

	return out
}

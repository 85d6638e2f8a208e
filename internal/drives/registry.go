// Package drives keeps the host's drive list and runs mount, unmount and
// share actions against it.
//
// The registry never guesses the state a drive is in after an action: every
// action is followed by a full reload of the list, whatever its outcome.
package drives

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/drivepi/drivepi-go/internal/api"
)

// ErrActionInFlight is returned when an action is requested for a drive that
// already has one pending. No request is sent.
var ErrActionInFlight = errors.New("drives: action already in progress for this drive")

// ErrUnknownDrive is returned for a UUID that is not in the current list.
var ErrUnknownDrive = errors.New("drives: unknown drive")

// Action is a mutating drive operation.
type Action string

// Drive actions.
const (
	ActionMount   Action = "mount"
	ActionUnmount Action = "unmount"
	ActionShare   Action = "share"
)

// Method returns the HTTP method the backend expects for the action.
func (a Action) Method() string {
	switch a {
	case ActionMount:
		return http.MethodPost
	case ActionUnmount:
		return http.MethodDelete
	case ActionShare:
		return http.MethodPut
	default:
		return ""
	}
}

// Progress is the label shown while the action is pending.
func (a Action) Progress() string {
	switch a {
	case ActionMount:
		return "Mounting"
	case ActionUnmount:
		return "Unmounting"
	case ActionShare:
		return "Sharing"
	default:
		return string(a)
	}
}

// ParseAction converts a command word into an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionMount, ActionUnmount, ActionShare:
		return a, nil
	default:
		return "", fmt.Errorf("drives: unknown action %q", s)
	}
}

// ActionError reports a failed action on one drive.
type ActionError struct {
	Action Action
	Drive  api.DriveItem
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Action, e.Drive.DisplayName(), api.MessageOf(e.Err))
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Dispatcher sends authenticated requests. *session.Store satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, method string, route api.Route, body, out any) error
}

// Recorder receives the start and outcome of every action. Implemented by
// the history package.
type Recorder interface {
	Start(ctx context.Context, action string, drive api.DriveItem) (int64, error)
	Finish(ctx context.Context, id int64, actionErr error) error
}

// Entry is one drive as presented to a view.
type Entry struct {
	Drive    api.DriveItem
	State    State
	InFlight Action // "" when idle
	Error    string // last action failure, "" when none
}

// Snapshot is a consistent copy of the registry for rendering.
type Snapshot struct {
	Entries   []Entry
	MountRoot string
}

// Find returns the entry with the given UUID.
func (s Snapshot) Find(uuid string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Drive.UUID == uuid {
			return e, true
		}
	}

	return Entry{}, false
}

// Registry holds the sorted drive list plus per-drive action markers and
// error text. Safe for concurrent use; the mutex is never held across a
// network call.
type Registry struct {
	dispatcher Dispatcher
	recorder   Recorder
	logger     *slog.Logger

	mu        sync.Mutex
	drives    []api.DriveItem
	mountRoot string
	inFlight  map[string]Action
	errs      map[string]string
}

// Option configures a Registry.
type Option func(*Registry)

// WithRecorder attaches an action recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// NewRegistry creates an empty registry. Call Load to populate it.
func NewRegistry(dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		dispatcher: dispatcher,
		logger:     logger,
		inFlight:   make(map[string]Action),
		errs:       make(map[string]string),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Load fetches the drive list and replaces the registry's copy with it,
// sorted by tier. On failure the previous list is kept.
func (r *Registry) Load(ctx context.Context) error {
	var resp api.DrivesResponse
	if err := r.dispatcher.Dispatch(ctx, http.MethodGet, api.RouteDrives, nil, &resp); err != nil {
		r.logger.Warn("loading drives failed",
			slog.Int("status", api.StatusOf(err)),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("drives: loading: %w", err)
	}

	sorted := Sort(resp.Drives, resp.MountRoot)

	r.mu.Lock()
	r.drives = sorted
	r.mountRoot = resp.MountRoot
	r.mu.Unlock()

	r.logger.Debug("drives loaded",
		slog.Int("count", len(sorted)),
		slog.String("mount_root", resp.MountRoot),
	)

	return nil
}

// Snapshot returns a copy of the current list with action markers.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Entries:   make([]Entry, 0, len(r.drives)),
		MountRoot: r.mountRoot,
	}

	for i := range r.drives {
		d := r.drives[i]
		snap.Entries = append(snap.Entries, Entry{
			Drive:    d,
			State:    StateOf(&d, r.mountRoot),
			InFlight: r.inFlight[d.UUID],
			Error:    r.errs[d.UUID],
		})
	}

	return snap
}

// Drive returns the drive with the given UUID from the current list.
func (r *Registry) Drive(uuid string) (api.DriveItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lookupLocked(uuid)
}

func (r *Registry) lookupLocked(uuid string) (api.DriveItem, bool) {
	i := slices.IndexFunc(r.drives, func(d api.DriveItem) bool { return d.UUID == uuid })
	if i < 0 {
		return api.DriveItem{}, false
	}

	return r.drives[i], true
}

// Mount mounts the drive with the given UUID.
func (r *Registry) Mount(ctx context.Context, uuid string) error {
	return r.Apply(ctx, ActionMount, uuid)
}

// Unmount unmounts the drive. Callers holding it as their selection should
// clear the selection first.
func (r *Registry) Unmount(ctx context.Context, uuid string) error {
	return r.Apply(ctx, ActionUnmount, uuid)
}

// Share exposes the drive under the mount root.
func (r *Registry) Share(ctx context.Context, uuid string) error {
	return r.Apply(ctx, ActionShare, uuid)
}

// Apply runs one action against one drive and reloads the list. A failed
// action is recorded as the drive's error text and returned as an
// *ActionError; a failed reload after a successful action is returned as is.
func (r *Registry) Apply(ctx context.Context, action Action, uuid string) (err error) {
	if action.Method() == "" {
		return fmt.Errorf("drives: unknown action %q", action)
	}

	r.mu.Lock()
	drive, ok := r.lookupLocked(uuid)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDrive, uuid)
	}

	if _, busy := r.inFlight[uuid]; busy {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrActionInFlight, drive.DisplayName())
	}

	r.inFlight[uuid] = action
	delete(r.errs, uuid)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inFlight, uuid)
		r.mu.Unlock()
	}()

	logger := r.logger.With(
		slog.String("action", string(action)),
		slog.String("drive", drive.UUID),
		slog.String("device", drive.Path),
	)
	logger.Info("drive action started")

	recordID := r.recordStart(ctx, action, drive)

	body := api.DriveActionRequest{Path: drive.Path, Name: drive.DisplayName()}
	actionErr := r.dispatcher.Dispatch(ctx, action.Method(), api.RouteDrives, body, nil)

	r.recordFinish(ctx, recordID, actionErr)

	if actionErr != nil {
		logger.Warn("drive action failed",
			slog.Int("status", api.StatusOf(actionErr)),
			slog.String("error", actionErr.Error()),
		)

		r.mu.Lock()
		r.errs[uuid] = api.MessageOf(actionErr)
		r.mu.Unlock()
	} else {
		logger.Info("drive action complete")
	}

	loadErr := r.Load(ctx)

	if actionErr != nil {
		return &ActionError{Action: action, Drive: drive, Err: actionErr}
	}

	return loadErr
}

// ApplyAll runs action on every listed drive concurrently and waits for all
// of them. Every failure is returned, joined.
func (r *Registry) ApplyAll(ctx context.Context, action Action, uuids []string) error {
	errs := make([]error, len(uuids))

	var g errgroup.Group
	for i, uuid := range uuids {
		g.Go(func() error {
			errs[i] = r.Apply(ctx, action, uuid)
			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

func (r *Registry) recordStart(ctx context.Context, action Action, drive api.DriveItem) int64 {
	if r.recorder == nil {
		return 0
	}

	id, err := r.recorder.Start(ctx, string(action), drive)
	if err != nil {
		r.logger.Warn("recording drive action failed", slog.String("error", err.Error()))
		return 0
	}

	return id
}

func (r *Registry) recordFinish(ctx context.Context, id int64, actionErr error) {
	if r.recorder == nil || id == 0 {
		return
	}

	if err := r.recorder.Finish(context.WithoutCancel(ctx), id, actionErr); err != nil {
		r.logger.Warn("recording drive action outcome failed", slog.String("error", err.Error()))
	}
}

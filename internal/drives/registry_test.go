package drives

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepi/drivepi-go/internal/api"
)

func strPtr(s string) *string { return &s }

// call is one request seen by fakeDispatcher.
type call struct {
	Method string
	Route  api.Route
	Body   any
}

// fakeDispatcher serves GET drives from a fixed response and lets tests
// script mutating calls.
type fakeDispatcher struct {
	mu      sync.Mutex
	resp    api.DrivesResponse
	loadErr error
	calls   []call
	// onAction, when set, handles mutating calls.
	onAction func(method string, body api.DriveActionRequest) error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, method string, route api.Route, body, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{Method: method, Route: route, Body: body})
	resp, loadErr, onAction := f.resp, f.loadErr, f.onAction
	f.mu.Unlock()

	if method == http.MethodGet {
		if loadErr != nil {
			return loadErr
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, out)
	}

	if onAction == nil {
		return nil
	}

	return onAction(method, body.(api.DriveActionRequest))
}

func (f *fakeDispatcher) mutating() []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []call
	for _, c := range f.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}

	return out
}

func (f *fakeDispatcher) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c.Method == http.MethodGet {
			n++
		}
	}

	return n
}

func uuids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Drive.UUID)
	}

	return out
}

func sampleResponse() api.DrivesResponse {
	return api.DrivesResponse{
		Drives: []api.DriveItem{
			{UUID: "a", Name: "sda1", Label: "Photos", Path: "/dev/sda1", Mount: strPtr("/mnt/root/a")},
			{UUID: "b", Name: "sdb1", Path: "/dev/sdb1"},
			{UUID: "c", Name: "sdc1", Label: "Backup", Path: "/dev/sdc1", Mount: strPtr("/mnt/other")},
		},
		MountRoot: "/mnt/root",
	}
}

func loadedRegistry(t *testing.T, f *fakeDispatcher) *Registry {
	t.Helper()

	r := NewRegistry(f, nil)
	require.NoError(t, r.Load(context.Background()))

	return r
}

func TestLoad_TieredOrder(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	r := loadedRegistry(t, f)

	snap := r.Snapshot()
	assert.Equal(t, []string{"a", "c", "b"}, uuids(snap.Entries))
	assert.Equal(t, "/mnt/root", snap.MountRoot)
	assert.Equal(t, Shared, snap.Entries[0].State)
	assert.Equal(t, Mounted, snap.Entries[1].State)
	assert.Equal(t, Unmounted, snap.Entries[2].State)
}

func TestSort_StableWithinTier(t *testing.T) {
	list := []api.DriveItem{
		{UUID: "u1"},
		{UUID: "m1", Mount: strPtr("/media/x")},
		{UUID: "s1", Mount: strPtr("/srv/share/1")},
		{UUID: "u2"},
		{UUID: "s2", Mount: strPtr("/srv/share/2")},
		{UUID: "m2", Mount: strPtr("/media/y")},
		{UUID: "u3"},
	}

	sorted := Sort(list, "/srv/share")

	got := make([]string, 0, len(sorted))
	for _, d := range sorted {
		got = append(got, d.UUID)
	}

	assert.Equal(t, []string{"s1", "s2", "m1", "m2", "u1", "u2", "u3"}, got)
	assert.Equal(t, "u1", list[0].UUID, "input must not be reordered")
}

func TestSort_TierInvariant(t *testing.T) {
	list := []api.DriveItem{
		{UUID: "1"}, {UUID: "2", Mount: strPtr("/r/2")}, {UUID: "3", Mount: strPtr("/x")},
		{UUID: "4", Mount: strPtr("/r/4")}, {UUID: "5"}, {UUID: "6", Mount: strPtr("/y")},
	}

	sorted := Sort(list, "/r")
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, StateOf(&sorted[i-1], "/r"), StateOf(&sorted[i], "/r"))
	}
}

func TestLoad_FailureKeepsList(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	r := loadedRegistry(t, f)

	f.mu.Lock()
	f.loadErr = &api.Error{Status: http.StatusInternalServerError, Message: "boom", Err: api.ErrServer}
	f.mu.Unlock()

	err := r.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrServer)
	assert.Equal(t, []string{"a", "c", "b"}, uuids(r.Snapshot().Entries))
}

func TestApply_SendsPathAndLabelThenReloads(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	r := loadedRegistry(t, f)

	require.NoError(t, r.Mount(context.Background(), "b"))
	require.NoError(t, r.Share(context.Background(), "c"))
	require.NoError(t, r.Unmount(context.Background(), "a"))

	calls := f.mutating()
	require.Len(t, calls, 3)

	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, api.RouteDrives, calls[0].Route)
	// Unlabeled drive falls back to its device name.
	assert.Equal(t, api.DriveActionRequest{Path: "/dev/sdb1", Name: "sdb1"}, calls[0].Body)

	assert.Equal(t, http.MethodPut, calls[1].Method)
	assert.Equal(t, api.DriveActionRequest{Path: "/dev/sdc1", Name: "Backup"}, calls[1].Body)

	assert.Equal(t, http.MethodDelete, calls[2].Method)
	assert.Equal(t, api.DriveActionRequest{Path: "/dev/sda1", Name: "Photos"}, calls[2].Body)

	// One initial load plus one per action.
	assert.Equal(t, 4, f.loads())
}

func TestApply_FailureRecordedPerDrive(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	f.onAction = func(_ string, body api.DriveActionRequest) error {
		if body.Path == "/dev/sdb1" {
			return &api.Error{Status: http.StatusInternalServerError, Message: "mount: wrong fs type", Err: api.ErrServer}
		}

		return nil
	}

	r := loadedRegistry(t, f)

	err := r.Mount(context.Background(), "b")
	require.Error(t, err)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, ActionMount, actionErr.Action)
	assert.Equal(t, "b", actionErr.Drive.UUID)
	assert.ErrorIs(t, err, api.ErrServer)
	assert.Equal(t, "mount sdb1: mount: wrong fs type", err.Error())

	// The list is still reloaded after a failure.
	assert.Equal(t, 2, f.loads())

	snap := r.Snapshot()
	b, ok := snap.Find("b")
	require.True(t, ok)
	assert.Equal(t, "mount: wrong fs type", b.Error)
	assert.Empty(t, b.InFlight)

	a, _ := snap.Find("a")
	assert.Empty(t, a.Error)

	// Another action on the same drive clears its error.
	f.mu.Lock()
	f.onAction = nil
	f.mu.Unlock()

	require.NoError(t, r.Share(context.Background(), "b"))
	b, _ = r.Snapshot().Find("b")
	assert.Empty(t, b.Error)
}

func TestApply_InFlightGuard(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}

	entered := make(chan string, 4)
	release := make(chan struct{})
	f.onAction = func(_ string, body api.DriveActionRequest) error {
		entered <- body.Path
		<-release

		return nil
	}

	r := loadedRegistry(t, f)

	firstDone := make(chan error, 1)
	go func() { firstDone <- r.Mount(context.Background(), "b") }()

	require.Equal(t, "/dev/sdb1", <-entered)

	entry, _ := r.Snapshot().Find("b")
	assert.Equal(t, ActionMount, entry.InFlight)
	assert.Equal(t, "Mounting", entry.InFlight.Progress())

	// Same drive: rejected without a request.
	err := r.Share(context.Background(), "b")
	assert.ErrorIs(t, err, ErrActionInFlight)

	// Different drive: runs concurrently.
	otherDone := make(chan error, 1)
	go func() { otherDone <- r.Share(context.Background(), "c") }()

	select {
	case path := <-entered:
		assert.Equal(t, "/dev/sdc1", path)
	case <-time.After(2 * time.Second):
		t.Fatal("action on a different drive was blocked")
	}

	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-otherDone)

	assert.Len(t, f.mutating(), 2)

	entry, _ = r.Snapshot().Find("b")
	assert.Empty(t, entry.InFlight, "guard released after completion")
}

func TestApply_GuardReleasedOnFailure(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	f.onAction = func(string, api.DriveActionRequest) error {
		return &api.Error{Status: api.StatusTransport, Message: api.MessageTransport, Err: api.ErrTransport}
	}

	r := loadedRegistry(t, f)

	require.Error(t, r.Mount(context.Background(), "b"))
	require.Error(t, r.Mount(context.Background(), "b"))
	assert.Len(t, f.mutating(), 2)
}

func TestApply_UnknownDrive(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	r := loadedRegistry(t, f)

	err := r.Mount(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrUnknownDrive)
	assert.Empty(t, f.mutating())
}

func TestApplyAll_CollectsEveryFailure(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	f.onAction = func(_ string, body api.DriveActionRequest) error {
		if body.Path == "/dev/sdc1" {
			return nil
		}

		return &api.Error{Status: http.StatusConflict, Message: "busy " + body.Path, Err: api.ErrConflict}
	}

	r := loadedRegistry(t, f)

	err := r.ApplyAll(context.Background(), ActionUnmount, []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy /dev/sda1")
	assert.Contains(t, err.Error(), "busy /dev/sdb1")
	assert.NotContains(t, err.Error(), "sdc1")
	assert.Len(t, f.mutating(), 3)
}

func TestApplyAll_AllSucceed(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	r := loadedRegistry(t, f)

	assert.NoError(t, r.ApplyAll(context.Background(), ActionMount, []string{"a", "b"}))
}

// fakeRecorder collects recorded actions.
type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	finished map[int64]error
	startErr error
}

func (f *fakeRecorder) Start(_ context.Context, action string, drive api.DriveItem) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return 0, f.startErr
	}

	f.started = append(f.started, action+":"+drive.UUID)

	return int64(len(f.started)), nil
}

func (f *fakeRecorder) Finish(_ context.Context, id int64, actionErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.finished == nil {
		f.finished = make(map[int64]error)
	}

	f.finished[id] = actionErr

	return nil
}

func TestApply_Recorder(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	f.onAction = func(method string, _ api.DriveActionRequest) error {
		if method == http.MethodDelete {
			return &api.Error{Status: http.StatusInternalServerError, Message: "target is busy", Err: api.ErrServer}
		}

		return nil
	}

	rec := &fakeRecorder{}
	r := NewRegistry(f, nil, WithRecorder(rec))
	require.NoError(t, r.Load(context.Background()))

	require.NoError(t, r.Mount(context.Background(), "b"))
	require.Error(t, r.Unmount(context.Background(), "a"))

	assert.Equal(t, []string{"mount:b", "unmount:a"}, rec.started)
	require.Len(t, rec.finished, 2)
	assert.NoError(t, rec.finished[1])
	assert.ErrorIs(t, rec.finished[2], api.ErrServer)
}

func TestApply_RecorderFailureDoesNotFailAction(t *testing.T) {
	f := &fakeDispatcher{resp: sampleResponse()}
	rec := &fakeRecorder{startErr: errors.New("database is locked")}
	r := NewRegistry(f, nil, WithRecorder(rec))
	require.NoError(t, r.Load(context.Background()))

	assert.NoError(t, r.Mount(context.Background(), "b"))
	assert.Empty(t, rec.finished)
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"mount", "unmount", "share"} {
		a, err := ParseAction(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(a))
	}

	_, err := ParseAction("format")
	assert.Error(t, err)
}

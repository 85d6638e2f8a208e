package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// Credentials and token accepted by a FakeHost.
const (
	FakeUser     = "admin"
	FakePassword = "hunter2"
	FakeToken    = "fake-token-1"
	// FakeExpiry is 2100-01-01 in milliseconds since the epoch.
	FakeExpiry = int64(4102444800000)
)

// FakeDrive is one partition served by a FakeHost.
type FakeDrive struct {
	UUID  string  `json:"uuid"`
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Path  string  `json:"path"`
	Mount *string `json:"mount"`
	Size  *string `json:"size"`
	Used  *string `json:"used"`
	Mode  string  `json:"mode"`
}

// FakeFile is a regular file in a FakeHost listing.
type FakeFile struct {
	Name        string `json:"name"`
	Size        uint64 `json:"size"`
	Permissions uint32 `json:"permissions"`
}

// FakeFolder is a directory in a FakeHost listing.
type FakeFolder struct {
	Name        string `json:"name"`
	Permissions uint32 `json:"permissions"`
}

// FakeListing is the content of one folder.
type FakeListing struct {
	Files   []FakeFile   `json:"files"`
	Folders []FakeFolder `json:"folders"`
}

// FakeHost is an in-memory Drive-PI backend serving the auth, drives and
// files routes. Mount actions mount under /media/<name>, share actions
// under MountRoot. Safe for concurrent use.
type FakeHost struct {
	mu        sync.Mutex
	token     string
	drives    []FakeDrive
	mountRoot string
	listings  map[string]FakeListing // "mount|path"
	failures  map[string]string      // device path -> error text
}

// Ptr returns a pointer to s.
func Ptr(s string) *string { return &s }

// NewFakeHost returns a host with three drives: Backup (unmounted), Media
// (mounted, with a small tree) and Photos (shared).
func NewFakeHost() *FakeHost {
	return &FakeHost{
		mountRoot: "/mnt/drivepi",
		drives: []FakeDrive{
			{UUID: "1111-aaaa", Name: "sdb1", Label: "Backup", Path: "/dev/sdb1", Size: Ptr("1T"), Mode: "rw"},
			{
				UUID: "2222-bbbb", Name: "sda1", Label: "Media", Path: "/dev/sda1", Mode: "rw",
				Mount: Ptr("/media/Media"), Size: Ptr("500G"), Used: Ptr("120G"),
			},
			{UUID: "3333-cccc", Name: "sdc1", Label: "Photos", Path: "/dev/sdc1", Mount: Ptr("/mnt/drivepi/Photos"), Mode: "rw"},
		},
		listings: map[string]FakeListing{
			"/media/Media|": {
				Files:   []FakeFile{{Name: "readme.txt", Size: 1536, Permissions: 0o644}},
				Folders: []FakeFolder{{Name: "movies", Permissions: 0o755}, {Name: "Docs", Permissions: 0o750}},
			},
			"/media/Media|Docs": {
				Files: []FakeFile{{Name: "b.pdf", Size: 10, Permissions: 0o600}, {Name: "a.pdf", Size: 20, Permissions: 0o600}},
			},
		},
		failures: map[string]string{},
	}
}

// Token returns the token the host currently accepts, "" when logged out.
func (h *FakeHost) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.token
}

// SetToken replaces the accepted token; "" revokes every session.
func (h *FakeHost) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.token = token
}

// Drives returns a copy of the drive list.
func (h *FakeHost) Drives() []FakeDrive {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]FakeDrive(nil), h.drives...)
}

// FailActions makes every action on devicePath answer 500 with message.
func (h *FakeHost) FailActions(devicePath, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures[devicePath] = message
}

// SetListing serves listing for path on the drive mounted at mount.
func (h *FakeHost) SetListing(mount, path string, listing FakeListing) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.listings[mount+"|"+path] = listing
}

func (h *FakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	route := strings.TrimPrefix(r.URL.Path, "/")
	authed := h.token != "" && r.Header.Get("X-Token") == h.token

	switch {
	case route == "auth" && r.Method == http.MethodGet:
		if authed {
			expiry := FakeExpiry
			writeJSON(w, map[string]any{"valid": true, "expiry_time": &expiry})

			return
		}

		writeJSON(w, map[string]any{"valid": false, "expiry_time": nil})
	case route == "auth" && r.Method == http.MethodPost:
		h.login(w, r)
	case route == "auth" && r.Method == http.MethodDelete:
		h.token = ""
		writeJSON(w, struct{}{})
	case !authed:
		fail(w, "invalid token", http.StatusUnauthorized)
	case route == "drives" && r.Method == http.MethodGet:
		writeJSON(w, map[string]any{"drives": h.drives, "mount_root": h.mountRoot})
	case route == "drives":
		h.driveAction(w, r)
	case route == "files" && r.Method == http.MethodPost:
		h.list(w, r)
	default:
		fail(w, "unexpected route", http.StatusInternalServerError)
	}
}

func (h *FakeHost) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, "bad request", http.StatusBadRequest)
		return
	}

	if req.Username != FakeUser || req.Password != FakePassword {
		fail(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.token = FakeToken
	writeJSON(w, map[string]any{"token": FakeToken, "expiry_time": FakeExpiry})
}

func (h *FakeHost) driveAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, "bad request", http.StatusBadRequest)
		return
	}

	if msg, ok := h.failures[req.Path]; ok {
		fail(w, msg, http.StatusInternalServerError)
		return
	}

	found := false

	for i := range h.drives {
		if h.drives[i].Path != req.Path {
			continue
		}

		found = true

		switch r.Method {
		case http.MethodPost:
			h.drives[i].Mount = Ptr("/media/" + req.Name)
		case http.MethodDelete:
			h.drives[i].Mount = nil
		case http.MethodPut:
			h.drives[i].Mount = Ptr(h.mountRoot + "/" + req.Name)
		default:
			fail(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
	}

	if !found {
		fail(w, "no such device", http.StatusNotFound)
		return
	}

	writeJSON(w, struct{}{})
}

func (h *FakeHost) list(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		DrivePath string `json:"drive_path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, "bad request", http.StatusBadRequest)
		return
	}

	listing, ok := h.listings[req.DrivePath+"|"+req.Path]
	if !ok {
		fail(w, "no such folder", http.StatusNotFound)
		return
	}

	writeJSON(w, listing)
}

// fail writes a plain-text error body the way the backend does.
func fail(w http.ResponseWriter, msg string, code int) {
	w.WriteHeader(code)
	_, _ = w.Write([]byte(msg))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

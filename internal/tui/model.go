// Package tui is the interactive terminal browser: a drive pane with
// mount/unmount/share actions and a file pane for the selected drive.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/drivepi/drivepi-go/internal/api"
	"github.com/drivepi/drivepi-go/internal/browser"
	"github.com/drivepi/drivepi-go/internal/drives"
	"github.com/drivepi/drivepi-go/internal/session"
)

// Registry is the part of *drives.Registry the browser drives.
type Registry interface {
	Load(ctx context.Context) error
	Snapshot() drives.Snapshot
	Apply(ctx context.Context, action drives.Action, uuid string) error
}

// Options tune presentation.
type Options struct {
	// Theme is one of "auto", "dark", "light" or "none".
	Theme string
	// Language selects the collation used to order folder entries.
	Language language.Tag
}

type pane int

const (
	paneDrives pane = iota
	paneFiles
)

type fileRow struct {
	name   string
	folder bool
	size   uint64
	perm   uint32
}

// Model is the bubbletea model of the browser.
type Model struct {
	ctx      context.Context
	registry Registry
	nav      *browser.Navigator
	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	styles   styles
	collator *collate.Collator

	width  int
	height int

	focus       pane
	driveCursor int
	fileCursor  int
	snap        drives.Snapshot
	rows        []fileRow
	listed      browser.Key
	loading     bool
	pending     int // actions dispatched and not yet answered
	status      string
	expired     bool
}

// NewModel creates the browser model. ctx bounds every request the model
// issues.
func NewModel(ctx context.Context, registry Registry, nav *browser.Navigator, opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		registry: registry,
		nav:      nav,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		styles:   stylesFor(opts.Theme),
		collator: collate.New(opts.Language, collate.IgnoreCase, collate.Numeric),
		width:    100,
		height:   30,
		snap:     registry.Snapshot(),
		status:   "Loading drives...",
	}
}

// Expired reports whether the program ended because the session was lost.
func (m Model) Expired() bool {
	return m.expired
}

// Status returns the current status line.
func (m Model) Status() string {
	return m.status
}

func (m Model) Init() tea.Cmd {
	return m.loadDrives()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		if m.pending == 0 {
			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.snap = m.registry.Snapshot()

		return m, cmd
	case drivesLoadedMsg:
		m.snap = msg.snap

		if msg.err != nil {
			if sessionLost(msg.err) {
				return m.endSession()
			}

			m.status = "Loading drives failed: " + api.MessageOf(msg.err)
		} else {
			m.status = fmt.Sprintf("%d drives", len(m.snap.Entries))
		}

		return m.syncSelection()
	case actionDoneMsg:
		m.pending = max(m.pending-1, 0)
		m.snap = msg.snap

		if sessionLost(msg.err) {
			return m.endSession()
		}

		m.status = actionStatus(msg)

		return m.syncSelection()
	case listingMsg:
		return m.applyListing(msg)
	case sessionEndedMsg:
		return m.endSession()
	}

	return m, nil
}

func (m Model) endSession() (tea.Model, tea.Cmd) {
	m.expired = true
	m.status = "Session expired"

	return m, tea.Quit
}

func sessionLost(err error) bool {
	return errors.Is(err, api.ErrUnauthorized) || errors.Is(err, session.ErrNotLoggedIn)
}

func actionStatus(msg actionDoneMsg) string {
	var actionErr *drives.ActionError

	switch {
	case msg.err == nil:
		if e, ok := msg.snap.Find(msg.uuid); ok {
			return fmt.Sprintf("%s: %s", e.Drive.DisplayName(), e.State)
		}

		return fmt.Sprintf("%s done", msg.action)
	case errors.Is(msg.err, drives.ErrActionInFlight):
		return "An action is already running on that drive"
	case errors.As(msg.err, &actionErr):
		return "Error: " + actionErr.Error()
	default:
		return "Reloading drives failed: " + api.MessageOf(msg.err)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Switch):
		if m.focus == paneFiles {
			m.focus = paneDrives
		} else if _, ok := m.nav.Drive(); ok {
			m.focus = paneFiles
		}

		return m, nil
	case key.Matches(msg, m.keys.Mount):
		return m.apply(drives.ActionMount)
	case key.Matches(msg, m.keys.Unmount):
		return m.apply(drives.ActionUnmount)
	case key.Matches(msg, m.keys.Share):
		return m.apply(drives.ActionShare)
	case key.Matches(msg, m.keys.Refresh):
		if m.focus == paneFiles {
			cmd := m.fetch(m.nav.Key())
			return m, cmd
		}

		m.status = "Refreshing drives..."

		return m, m.loadDrives()
	}

	if m.focus == paneDrives {
		return m.handleDriveKey(msg)
	}

	return m.handleFileKey(msg)
}

func (m Model) handleDriveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.driveCursor > 0 {
			m.driveCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.driveCursor < len(m.snap.Entries)-1 {
			m.driveCursor++
		}
	case key.Matches(msg, m.keys.Open):
		entry, ok := m.cursorEntry()
		if !ok {
			return m, nil
		}

		if !entry.Drive.IsMounted() {
			m.status = fmt.Sprintf("%s is not mounted, press m to mount it", entry.Drive.DisplayName())
			return m, nil
		}

		m.focus = paneFiles

		k, changed := m.nav.SelectDrive(entry.Drive)
		if changed {
			m.clearRows()
		}

		if changed || (m.listed != k && !m.loading) {
			cmd := m.fetch(k)
			return m, cmd
		}
	}

	return m, nil
}

func (m Model) handleFileKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var (
		k       browser.Key
		changed bool
	)

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.fileCursor > 0 {
			m.fileCursor--
		}

		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.fileCursor < len(m.rows)-1 {
			m.fileCursor++
		}

		return m, nil
	case key.Matches(msg, m.keys.Open):
		// Rows name folders of m.listed; any other key would pair them
		// with the wrong path or drive.
		if m.listed != m.nav.Key() || m.fileCursor >= len(m.rows) || !m.rows[m.fileCursor].folder {
			return m, nil
		}

		k, changed = m.nav.MoveForward(m.rows[m.fileCursor].name)
	case key.Matches(msg, m.keys.Back):
		k, changed = m.nav.MoveBack()
	case key.Matches(msg, m.keys.Home):
		k, changed = m.nav.MoveHome()
	}

	if !changed {
		return m, nil
	}

	cmd := m.fetch(k)
	return m, cmd
}

// apply starts action on the drive under the cursor, or on the browsed drive
// when the file pane has focus.
func (m Model) apply(action drives.Action) (tea.Model, tea.Cmd) {
	entry, ok := m.targetEntry()
	if !ok {
		m.status = "No drive selected"
		return m, nil
	}

	if entry.InFlight != "" {
		m.status = fmt.Sprintf("%s is busy: %s", entry.Drive.DisplayName(), entry.InFlight.Progress())
		return m, nil
	}

	if action == drives.ActionUnmount {
		if browsed, ok := m.nav.Drive(); ok && browsed.UUID == entry.Drive.UUID {
			m.deselect()
		}
	}

	ctx, reg, uuid := m.ctx, m.registry, entry.Drive.UUID
	run := func() tea.Msg {
		err := reg.Apply(ctx, action, uuid)
		return actionDoneMsg{action: action, uuid: uuid, snap: reg.Snapshot(), err: err}
	}

	m.status = fmt.Sprintf("%s %s...", action.Progress(), entry.Drive.DisplayName())
	m.pending++

	if m.pending > 1 {
		return m, run
	}

	return m, tea.Batch(run, m.spinner.Tick)
}

func (m Model) cursorEntry() (drives.Entry, bool) {
	if m.driveCursor < 0 || m.driveCursor >= len(m.snap.Entries) {
		return drives.Entry{}, false
	}

	return m.snap.Entries[m.driveCursor], true
}

func (m Model) targetEntry() (drives.Entry, bool) {
	if m.focus == paneDrives {
		return m.cursorEntry()
	}

	d, ok := m.nav.Drive()
	if !ok {
		return drives.Entry{}, false
	}

	return m.snap.Find(d.UUID)
}

// syncSelection keeps the navigator in step with a new drive snapshot. A
// browsed drive that disappeared or lost its mount is deselected; a drive
// whose mount point moved starts over at its root.
func (m Model) syncSelection() (tea.Model, tea.Cmd) {
	m.driveCursor = min(m.driveCursor, max(len(m.snap.Entries)-1, 0))

	current, ok := m.nav.Drive()
	if !ok {
		return m, nil
	}

	entry, found := m.snap.Find(current.UUID)
	if !found || !entry.Drive.IsMounted() {
		m.deselect()
		return m, nil
	}

	k, changed := m.nav.SelectDrive(entry.Drive)
	if !changed {
		return m, nil
	}

	m.clearRows()

	cmd := m.fetch(k)
	return m, cmd
}

func (m Model) applyListing(msg listingMsg) (tea.Model, tea.Cmd) {
	if errors.Is(msg.err, browser.ErrStale) || msg.key != m.nav.Key() {
		return m, nil
	}

	m.loading = false

	if msg.err != nil {
		if sessionLost(msg.err) {
			return m.endSession()
		}

		m.status = "Listing failed: " + api.MessageOf(msg.err)

		return m, nil
	}

	if msg.key != m.listed {
		m.fileCursor = 0
	}

	m.listed = msg.key
	m.rows = m.sortRows(msg.listing)
	m.fileCursor = min(m.fileCursor, max(len(m.rows)-1, 0))
	m.status = fmt.Sprintf("%d folders, %d files", len(msg.listing.Folders), len(msg.listing.Files))

	return m, nil
}

// clearRows drops the shown listing so no row outlives the key it was
// listed under.
func (m *Model) clearRows() {
	m.rows = nil
	m.listed = browser.Key{}
	m.fileCursor = 0
}

// deselect stops browsing the current drive and returns focus to the drive
// pane.
func (m *Model) deselect() {
	m.nav.ClearDrive()
	m.clearRows()
	m.loading = false
	m.focus = paneDrives
}

func (m *Model) fetch(k browser.Key) tea.Cmd {
	if !k.Fetchable() {
		return nil
	}

	m.loading = true

	ctx, nav := m.ctx, m.nav

	return func() tea.Msg {
		listing, err := nav.Fetch(ctx, k)
		return listingMsg{key: k, listing: listing, err: err}
	}
}

func (m Model) loadDrives() tea.Cmd {
	ctx, reg := m.ctx, m.registry

	return func() tea.Msg {
		err := reg.Load(ctx)
		return drivesLoadedMsg{snap: reg.Snapshot(), err: err}
	}
}

// sortRows orders folders before files, each by locale collation.
func (m Model) sortRows(l browser.Listing) []fileRow {
	rows := make([]fileRow, 0, len(l.Folders)+len(l.Files))
	for _, f := range l.Folders {
		rows = append(rows, fileRow{name: f.Name, folder: true, perm: f.Permissions})
	}

	for _, f := range l.Files {
		rows = append(rows, fileRow{name: f.Name, size: f.Size, perm: f.Permissions})
	}

	c := m.collator
	slices.SortStableFunc(rows, func(a, b fileRow) int {
		if a.folder != b.folder {
			if a.folder {
				return -1
			}

			return 1
		}

		return c.CompareString(norm.NFC.String(a.name), norm.NFC.String(b.name))
	})

	return rows
}

package tui

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/drivepi/drivepi-go/internal/drives"
)

type styles struct {
	header   lipgloss.Style
	muted    lipgloss.Style
	warn     lipgloss.Style
	cursor   lipgloss.Style
	shared   lipgloss.Style
	mounted  lipgloss.Style
	folder   lipgloss.Style
	sepColor lipgloss.Style
}

func stylesFor(theme string) styles {
	switch strings.ToLower(theme) {
	case "none":
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain.Bold(true), plain, plain, plain, plain}
	case "auto":
		if lipgloss.HasDarkBackground() {
			return stylesFor("dark")
		}

		return stylesFor("light")
	case "light":
		return styles{
			header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("235")),
			muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
			warn:     lipgloss.NewStyle().Foreground(lipgloss.Color("124")).Bold(true),
			cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("90")).Bold(true),
			shared:   lipgloss.NewStyle().Foreground(lipgloss.Color("25")),
			mounted:  lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
			folder:   lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
			sepColor: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		}
	}

	return styles{
		header:   lipgloss.NewStyle().Bold(true),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		warn:     lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true),
		cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		shared:   lipgloss.NewStyle().Foreground(lipgloss.Color("69")),
		mounted:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		folder:   lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true),
		sepColor: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

func (m Model) View() string {
	if m.expired {
		return ""
	}

	footer := m.renderFooter()
	height := max(m.height-lipgloss.Height(footer), 3)

	leftWidth := max(m.width*2/5, 24)
	rightWidth := max(m.width-leftWidth-1, 20)

	left := m.renderDrives(leftWidth, height)
	right := m.renderFiles(rightWidth, height)
	sep := m.styles.sepColor.Render(strings.Repeat("│\n", height-1) + "│")

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, sep, right)

	return body + "\n" + footer
}

func (m Model) paneTitle(title string, p pane) string {
	if m.focus == p {
		return m.styles.cursor.Render("▸ " + title)
	}

	return m.styles.header.Render("  " + title)
}

func (m Model) renderDrives(width, height int) string {
	lines := []string{m.paneTitle("Drives", paneDrives)}
	cursorLine := 0

	if len(m.snap.Entries) == 0 {
		lines = append(lines, m.styles.muted.Render("  no drives"))
	}

	for i, e := range m.snap.Entries {
		marker := "  "
		if i == m.driveCursor {
			marker = "> "
			cursorLine = len(lines)
		}

		name := e.Drive.DisplayName()
		if i == m.driveCursor && m.focus == paneDrives {
			name = m.styles.cursor.Render(name)
		}

		lines = append(lines, marker+name+"  "+m.stateLabel(e))

		switch {
		case e.InFlight != "":
			lines = append(lines, "    "+m.spinner.View()+" "+e.InFlight.Progress()+"...")
		case e.Error != "":
			lines = append(lines, "    "+m.styles.warn.Render("! "+e.Error))
		}
	}

	return renderPanel(window(lines, cursorLine, height), width, height)
}

func (m Model) stateLabel(e drives.Entry) string {
	switch e.State {
	case drives.Shared:
		return m.styles.shared.Render("shared " + mountOf(e))
	case drives.Mounted:
		return m.styles.mounted.Render("mounted " + mountOf(e))
	default:
		return m.styles.muted.Render("unmounted")
	}
}

func mountOf(e drives.Entry) string {
	if e.Drive.Mount == nil {
		return ""
	}

	return *e.Drive.Mount
}

func (m Model) renderFiles(width, height int) string {
	drive, ok := m.nav.Drive()
	if !ok {
		lines := []string{
			m.paneTitle("Files", paneFiles),
			m.styles.muted.Render("  select a mounted drive and press enter"),
		}

		return renderPanel(lines, width, height)
	}

	crumbs := append([]string{drive.DisplayName()}, m.nav.Breadcrumbs()...)
	lines := []string{m.paneTitle(strings.Join(crumbs, " / "), paneFiles)}
	cursorLine := 0

	switch {
	case m.loading && len(m.rows) == 0:
		lines = append(lines, m.styles.muted.Render("  loading..."))
	case len(m.rows) == 0 && m.listed != m.nav.Key():
		lines = append(lines, m.styles.muted.Render("  no listing, press r to retry"))
	case len(m.rows) == 0:
		lines = append(lines, m.styles.muted.Render("  empty folder"))
	}

	for i, r := range m.rows {
		marker := "  "
		if i == m.fileCursor {
			marker = "> "
			cursorLine = len(lines)
		}

		mode := fs.FileMode(r.perm & 0o777)
		name := r.name
		size := humanSize(r.size)

		if r.folder {
			mode |= fs.ModeDir
			name = m.styles.folder.Render(name + "/")
			size = "-"
		}

		if i == m.fileCursor && m.focus == paneFiles {
			marker = m.styles.cursor.Render(marker)
		}

		lines = append(lines, fmt.Sprintf("%s%s %9s  %s", marker, mode, size, name))
	}

	return renderPanel(window(lines, cursorLine, height), width, height)
}

func (m Model) renderFooter() string {
	status := m.styles.muted.Render(m.status)
	if strings.HasPrefix(m.status, "Error") || strings.Contains(m.status, "failed") {
		status = m.styles.warn.Render(m.status)
	}

	return status + "\n" + m.help.View(m.keys)
}

func renderPanel(lines []string, width, height int) string {
	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).
		Render(strings.Join(lines, "\n"))
}

// window returns at most height lines around focus, always keeping the
// title line.
func window(lines []string, focus, height int) []string {
	if len(lines) <= height || height < 2 {
		return lines
	}

	body := lines[1:]
	rows := height - 1
	focus = max(focus-1, 0)

	start := max(focus-rows+1, 0)
	end := min(start+rows, len(body))

	return append([]string{lines[0]}, body[start:end]...)
}

func humanSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * sizeKB
	sizeGB = 1024 * sizeMB
	sizeTB = 1024 * sizeGB
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes uint64) string {
	switch {
	case bytes >= sizeTB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/float64(sizeTB))
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp relative to now: "Jan _2 15:04"
// within the current year, "Jan _2  2006" otherwise.
func formatTime(t, now time.Time) string {
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// formatMode renders unix permission bits the way ls does.
func formatMode(perm uint32, dir bool) string {
	mode := fs.FileMode(perm & 0o777)
	if dir {
		mode |= fs.ModeDir
	}

	return mode.String()
}

// valueOr returns *s, or fallback for nil and empty strings.
func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}

	return *s
}

// printTable writes aligned columns. headers and each row must have the
// same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// displayLanguage picks the collation language from the POSIX locale
// variables, falling back to the root locale.
func displayLanguage() language.Tag {
	for _, env := range []string{"LC_ALL", "LC_COLLATE", "LANG"} {
		v := os.Getenv(env)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}

		// "en_US.UTF-8" -> "en-US"
		v, _, _ = strings.Cut(v, ".")
		v = strings.ReplaceAll(v, "_", "-")

		if tag, err := language.Parse(v); err == nil {
			return tag
		}
	}

	return language.Und
}

// sortNames orders names for display using locale collation, ignoring case.
func sortNames[T any](items []T, name func(T) string) {
	c := collate.New(displayLanguage(), collate.IgnoreCase, collate.Numeric)
	slices.SortStableFunc(items, func(a, b T) int {
		return c.CompareString(norm.NFC.String(name(a)), norm.NFC.String(name(b)))
	})
}

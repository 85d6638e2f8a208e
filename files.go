package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/drivepi/drivepi-go/internal/api"
	"github.com/drivepi/drivepi-go/internal/browser"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <drive> [path]",
		Short: "List a folder on a mounted drive",
		Long: "List a folder on a mounted drive. The drive is selected like in 'drivepi drives mount'; " +
			"path is relative to the drive's mount point and uses '/' separators.",
		Args: cobra.RangeArgs(1, 2),
		RunE: runLs,
	}
}

// lsJSONItem is the JSON output schema for one entry of `ls --json`.
type lsJSONItem struct {
	Name        string `json:"name"`
	IsFolder    bool   `json:"is_folder"`
	Size        uint64 `json:"size"`
	Permissions uint32 `json:"permissions"`
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	ds, err := NewDriveSession(ctx, cc, false)
	if err != nil {
		return err
	}
	defer ds.Close()

	drive, err := selectDrive(ds.Registry.Snapshot(), args[0])
	if err != nil {
		return err
	}

	if !drive.IsMounted() {
		return fmt.Errorf("drive %s is not mounted — run 'drivepi drives mount %s' first", drive.DisplayName(), drive.Name)
	}

	nav := browser.New(ds.Session, cc.Logger)
	nav.SelectDrive(drive)

	if len(args) > 1 {
		for _, seg := range browser.Segments(args[1]) {
			nav.MoveForward(seg)
		}
	}

	cc.Logger.Debug("ls", slog.String("drive", drive.UUID), slog.String("path", nav.Path()))

	listing, err := nav.Refresh(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, listingJSON(listing))
	}

	printListing(cc, listing)

	return nil
}

func listingJSON(l browser.Listing) []lsJSONItem {
	out := make([]lsJSONItem, 0, len(l.Folders)+len(l.Files))

	folders, files := sortedListing(l)
	for _, f := range folders {
		out = append(out, lsJSONItem{Name: f.Name, IsFolder: true, Permissions: f.Permissions})
	}

	for _, f := range files {
		out = append(out, lsJSONItem{Name: f.Name, Size: f.Size, Permissions: f.Permissions})
	}

	return out
}

// sortedListing returns copies of the folders and files in display order.
func sortedListing(l browser.Listing) ([]api.DriveFolder, []api.DriveFile) {
	folders := append([]api.DriveFolder(nil), l.Folders...)
	files := append([]api.DriveFile(nil), l.Files...)

	sortNames(folders, func(f api.DriveFolder) string { return f.Name })
	sortNames(files, func(f api.DriveFile) string { return f.Name })

	return folders, files
}

// printListing prints folders first, then files.
func printListing(cc *CLIContext, l browser.Listing) {
	folders, files := sortedListing(l)

	if len(folders)+len(files) == 0 {
		cc.Statusf("Folder is empty.\n")
		return
	}

	headers := []string{"MODE", "SIZE", "NAME"}
	rows := make([][]string, 0, len(folders)+len(files))

	for _, f := range folders {
		rows = append(rows, []string{formatMode(f.Permissions, true), "-", f.Name + "/"})
	}

	for _, f := range files {
		rows = append(rows, []string{formatMode(f.Permissions, false), formatSize(f.Size), f.Name})
	}

	printTable(cc.Out, headers, rows)

	fmt.Fprintf(cc.Out, "\n%d folders, %d files\n", len(folders), len(files))
}

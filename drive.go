package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/drivepi/drivepi-go/internal/api"
	"github.com/drivepi/drivepi-go/internal/drives"
)

func newDrivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drives",
		Aliases: []string{"drive"},
		Short:   "List and manage the host's drives",
		Args:    cobra.NoArgs,
		RunE:    runDrivesList,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List drives, shared first, then mounted, then unmounted",
		Args:  cobra.NoArgs,
		RunE:  runDrivesList,
	})

	for _, action := range []drives.Action{drives.ActionMount, drives.ActionUnmount, drives.ActionShare} {
		cmd.AddCommand(newDriveActionCmd(action))
	}

	return cmd
}

var actionShort = map[drives.Action]string{
	drives.ActionMount:   "Mount drives",
	drives.ActionUnmount: "Unmount drives",
	drives.ActionShare:   "Share drives under the host's mount root",
}

func newDriveActionCmd(action drives.Action) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <drive>...",
		Short: actionShort[action],
		Long: actionShort[action] + ". A drive is selected by UUID, device name (sda1), " +
			"device path (/dev/sda1) or label. Several drives are processed concurrently.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriveAction(cmd, action, args)
		},
	}
}

// driveJSON is the JSON schema for one drive in `drives --json`.
type driveJSON struct {
	UUID  string  `json:"uuid"`
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Path  string  `json:"path"`
	State string  `json:"state"`
	Mount *string `json:"mount"`
	Size  *string `json:"size"`
	Used  *string `json:"used"`
	Mode  string  `json:"mode"`
}

func runDrivesList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ds, err := NewDriveSession(cmd.Context(), cc, false)
	if err != nil {
		return err
	}
	defer ds.Close()

	snap := ds.Registry.Snapshot()

	if cc.Flags.JSON {
		out := make([]driveJSON, 0, len(snap.Entries))
		for _, e := range snap.Entries {
			d := e.Drive
			out = append(out, driveJSON{
				UUID: d.UUID, Name: d.Name, Label: d.Label, Path: d.Path,
				State: e.State.String(), Mount: d.Mount, Size: d.Size, Used: d.Used, Mode: d.Mode,
			})
		}

		return printJSON(cc.Out, map[string]any{"mount_root": snap.MountRoot, "drives": out})
	}

	if len(snap.Entries) == 0 {
		cc.Statusf("No drives attached.\n")
		return nil
	}

	printDrivesTable(cc, snap)

	return nil
}

func printDrivesTable(cc *CLIContext, snap drives.Snapshot) {
	headers := []string{"DEVICE", "LABEL", "STATE", "SIZE", "USED", "MOUNT", "UUID"}
	rows := make([][]string, 0, len(snap.Entries))

	for _, e := range snap.Entries {
		d := e.Drive
		rows = append(rows, []string{
			d.Path,
			valueOr(&d.Label, "-"),
			e.State.String(),
			valueOr(d.Size, "-"),
			valueOr(d.Used, "-"),
			valueOr(d.Mount, "-"),
			d.UUID,
		})
	}

	printTable(cc.Out, headers, rows)
}

func runDriveAction(cmd *cobra.Command, action drives.Action, selectors []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	ds, err := NewDriveSession(ctx, cc, true)
	if err != nil {
		return err
	}
	defer ds.Close()

	reg := ds.Registry
	snap := reg.Snapshot()

	uuids := make([]string, 0, len(selectors))
	seen := make(map[string]bool)

	for _, sel := range selectors {
		d, err := selectDrive(snap, sel)
		if err != nil {
			return err
		}

		if !seen[d.UUID] {
			seen[d.UUID] = true
			uuids = append(uuids, d.UUID)
		}
	}

	for _, uuid := range uuids {
		d, _ := reg.Drive(uuid)
		cc.Statusf("%s %s...\n", action.Progress(), d.DisplayName())
	}

	err = reg.ApplyAll(ctx, action, uuids)

	reportActionResults(cc, reg.Snapshot(), action, uuids, err)

	if err != nil {
		return fmt.Errorf("%s failed for %d of %d drives", action, countActionErrors(err), len(uuids))
	}

	return nil
}

// reportActionResults prints one line per drive with the outcome.
func reportActionResults(cc *CLIContext, snap drives.Snapshot, action drives.Action, uuids []string, err error) {
	failed := make(map[string]error)

	for _, e := range unwrapJoined(err) {
		var actionErr *drives.ActionError
		if errors.As(e, &actionErr) {
			failed[actionErr.Drive.UUID] = actionErr
			continue
		}

		// A reload failure after the action; not tied to one drive.
		fmt.Fprintf(cc.Err, "warning: %v\n", e)
	}

	for _, uuid := range uuids {
		entry, ok := snap.Find(uuid)
		name := uuid

		if ok {
			name = entry.Drive.DisplayName()
		}

		if actionErr, bad := failed[uuid]; bad {
			fmt.Fprintf(cc.Err, "%s: %s failed: %s\n", name, action, api.MessageOf(actionErr))
			continue
		}

		if ok {
			cc.Statusf("%s: %s (%s)\n", name, entry.State, valueOr(entry.Drive.Mount, "not mounted"))
		}
	}
}

func unwrapJoined(err error) []error {
	if err == nil {
		return nil
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}

	return []error{err}
}

func countActionErrors(err error) int {
	n := 0

	for _, e := range unwrapJoined(err) {
		var actionErr *drives.ActionError
		if errors.As(e, &actionErr) {
			n++
		}
	}

	return max(n, 1)
}

// selectDrive resolves a selector against the listed drives: UUID first,
// then device name or path, then label.
func selectDrive(snap drives.Snapshot, selector string) (api.DriveItem, error) {
	if selector == "" {
		return api.DriveItem{}, errors.New("empty drive selector")
	}

	matchers := []func(d *api.DriveItem) bool{
		func(d *api.DriveItem) bool { return d.UUID == selector },
		func(d *api.DriveItem) bool { return d.Name == selector || d.Path == selector },
		func(d *api.DriveItem) bool {
			return d.Label != "" && strings.EqualFold(norm.NFC.String(d.Label), norm.NFC.String(selector))
		},
	}

	for _, match := range matchers {
		var found []api.DriveItem

		for _, e := range snap.Entries {
			if match(&e.Drive) {
				found = append(found, e.Drive)
			}
		}

		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			names := make([]string, 0, len(found))
			for _, d := range found {
				names = append(names, d.Path+" ("+d.UUID+")")
			}

			return api.DriveItem{}, fmt.Errorf("drive %q is ambiguous: %s", selector, strings.Join(names, ", "))
		}
	}

	return api.DriveItem{}, fmt.Errorf("no drive matches %q", selector)
}

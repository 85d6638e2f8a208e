package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivepi/drivepi-go/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent mount, unmount and share actions",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntP("limit", "n", history.DefaultLimit, "number of actions to show")

	return cmd
}

// historyJSON is the JSON schema for one record of `history --json`.
type historyJSON struct {
	ID         int64      `json:"id"`
	Action     string     `json:"action"`
	DriveUUID  string     `json:"drive_uuid"`
	DrivePath  string     `json:"drive_path"`
	Label      string     `json:"label"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     int        `json:"status,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	if limit < 1 {
		return fmt.Errorf("--limit must be at least 1, got %d", limit)
	}

	store, err := history.Open(ctx, cc.Cfg.HistoryFile, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]historyJSON, 0, len(records))
		for _, r := range records {
			item := historyJSON{
				ID: r.ID, Action: r.Action, DriveUUID: r.DriveUUID, DrivePath: r.DrivePath,
				Label: r.Label, StartedAt: r.StartedAt, Status: r.Status, Error: r.Error,
			}

			if !r.Pending() {
				finished := r.FinishedAt
				item.FinishedAt = &finished
			}

			out = append(out, item)
		}

		return printJSON(cc.Out, out)
	}

	if len(records) == 0 {
		cc.Statusf("No actions recorded.\n")
		return nil
	}

	now := time.Now()
	headers := []string{"WHEN", "ACTION", "DRIVE", "DEVICE", "RESULT"}
	rows := make([][]string, 0, len(records))

	for _, r := range records {
		rows = append(rows, []string{
			formatTime(r.StartedAt.Local(), now),
			r.Action,
			r.Label,
			r.DrivePath,
			historyResult(r),
		})
	}

	printTable(cc.Out, headers, rows)

	return nil
}

func historyResult(r history.Record) string {
	switch {
	case r.Pending():
		return "interrupted"
	case r.Succeeded():
		return "ok"
	case r.Status > 0:
		return fmt.Sprintf("failed (%d): %s", r.Status, r.Error)
	default:
		return "failed: " + r.Error
	}
}

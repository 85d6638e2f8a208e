// Package history keeps a local SQLite ledger of drive actions: what was
// asked of which drive, when, and how it ended.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/drivepi/drivepi-go/internal/api"
)

const (
	sqlInsertAction = `INSERT INTO actions (action, drive_uuid, drive_path, label, started_at)
		VALUES (?, ?, ?, ?, ?)`

	sqlFinishAction = `UPDATE actions SET finished_at = ?, status = ?, error = ?
		WHERE id = ? AND finished_at IS NULL`

	sqlRecentActions = `SELECT id, action, drive_uuid, drive_path, label, started_at,
		finished_at, status, error
		FROM actions ORDER BY started_at DESC, id DESC LIMIT ?`
)

// DefaultLimit is the number of records Recent returns for a non-positive
// limit.
const DefaultLimit = 20

// ErrUnknownRecord is returned by Finish for an id that does not exist or was
// already finished.
var ErrUnknownRecord = errors.New("history: no pending record with that id")

// Record is one drive action.
type Record struct {
	ID         int64
	Action     string
	DriveUUID  string
	DrivePath  string
	Label      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while pending
	Status     int       // HTTP status of a failure, 0 on success
	Error      string    // "" on success
}

// Pending reports whether the action has not finished.
func (r Record) Pending() bool {
	return r.FinishedAt.IsZero()
}

// Succeeded reports whether the action finished without error.
func (r Record) Succeeded() bool {
	return !r.Pending() && r.Error == ""
}

// Store is an open history database. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the history database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}

	// Concurrent drive actions share one connection.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history opened", slog.String("path", path))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start records the beginning of an action and returns its id.
func (s *Store) Start(ctx context.Context, action string, drive api.DriveItem) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlInsertAction,
		action, drive.UUID, drive.Path, drive.DisplayName(), s.nowFunc().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("history: recording %s of %s: %w", action, drive.UUID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: reading record id: %w", err)
	}

	return id, nil
}

// Finish records the outcome of a started action. A nil actionErr marks it
// successful.
func (s *Store) Finish(ctx context.Context, id int64, actionErr error) error {
	var (
		status  sql.NullInt64
		message sql.NullString
	)

	if actionErr != nil {
		status = sql.NullInt64{Int64: int64(api.StatusOf(actionErr)), Valid: true}
		text := api.MessageOf(actionErr)
		if text == "" {
			text = actionErr.Error()
		}

		message = sql.NullString{String: text, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, sqlFinishAction, s.nowFunc().UnixNano(), status, message, id)
	if err != nil {
		return fmt.Errorf("history: finishing record %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("history: finishing record %d: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownRecord, id)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlRecentActions, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying: %w", err)
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var (
			r        Record
			started  int64
			finished sql.NullInt64
			status   sql.NullInt64
			message  sql.NullString
		)

		if err := rows.Scan(&r.ID, &r.Action, &r.DriveUUID, &r.DrivePath, &r.Label,
			&started, &finished, &status, &message); err != nil {
			return nil, fmt.Errorf("history: scanning record: %w", err)
		}

		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}

		r.Status = int(status.Int64)
		r.Error = message.String

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating records: %w", err)
	}

	return records, nil
}

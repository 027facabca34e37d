// Package sqlite stores lifecycle events in a local SQLite database.
//
// It is the offline alternative to the Firebase log: a single append-only
// table whose autoincrement sequence records arrival order. Event keys are
// xids, which sort by creation time like Firebase push ids.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cycletrack/internal/event"
	"cycletrack/internal/eventlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	key             TEXT    NOT NULL UNIQUE,
	tracker_id      TEXT    NOT NULL,
	kind            TEXT    NOT NULL,
	dev_name        TEXT    NOT NULL DEFAULT '',
	points          TEXT,
	reason          TEXT    NOT NULL DEFAULT '',
	extended_reason TEXT    NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events (created_at, seq);
CREATE INDEX IF NOT EXISTS idx_events_tracker_id ON events (tracker_id, created_at, seq);
`

const busyTimeout = 10 * time.Second

// Store is an [eventlog.Store] backed by SQLite.
type Store struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, log *logrus.Entry) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", connString(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer keeps arrival order identical to seq order.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	log.WithField("path", path).Debug("opened event database")
	return &Store{db: db, log: log.WithField("cmp", "sqlite")}, nil
}

func connString(path string) string {
	busyMs := int64(busyTimeout / time.Millisecond)
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(wal)", path, busyMs)
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements [eventlog.Store].
func (s *Store) Append(ctx context.Context, e event.Event) (event.Event, error) {
	e.CreatedAt = event.Truncate(e.CreatedAt)
	e.Key = xid.New().String()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (key, tracker_id, kind, dev_name, points, reason, extended_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.TrackerID, string(e.Kind), e.Developer, e.Points,
		e.Reason, e.ExtendedReason, e.CreatedAt.Unix(),
	)
	if err != nil {
		e.Key = ""
		return event.Event{}, &eventlog.AppendError{Event: e, Err: err}
	}
	s.log.WithFields(logrus.Fields{"key": e.Key, "id": e.TrackerID, "event": e.Kind}).Debug("event appended")
	return e, nil
}

// Query implements [eventlog.Store].
func (s *Store) Query(ctx context.Context, q eventlog.Query) ([]event.Event, error) {
	if q.IsEmpty() {
		return nil, eventlog.ErrEmptyQuery
	}

	var where []string
	var args []any
	if q.TrackerID != "" {
		where = append(where, "tracker_id = ?")
		args = append(args, q.TrackerID)
	}
	if !q.StartAt.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.StartAt.Unix())
	}
	if !q.EndAt.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, q.EndAt.Unix())
	}

	query := `SELECT key, tracker_id, kind, dev_name, points, reason, extended_reason, created_at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Last > 0 {
		query += ` ORDER BY created_at DESC, seq DESC LIMIT ?`
		args = append(args, q.Last)
	} else {
		query += ` ORDER BY created_at, seq`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			e       event.Event
			kind    string
			points  decimal.NullDecimal
			created int64
		)
		if err := rows.Scan(&e.Key, &e.TrackerID, &kind, &e.Developer, &points,
			&e.Reason, &e.ExtendedReason, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		e.Kind = event.Kind(kind)
		e.Points = points
		e.CreatedAt = time.Unix(created, 0)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: read events: %w", err)
	}

	if q.Last > 0 {
		// the tail came back newest first
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, nil
}

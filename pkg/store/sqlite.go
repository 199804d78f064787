package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode so several processes can journal into one file.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	// Timestamps are unix nanoseconds so range filters compare numerically.
	query := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		ts_event INTEGER NOT NULL,

		origin_kind TEXT,
		origin_id TEXT,

		scene TEXT NOT NULL,
		kind TEXT NOT NULL,
		source_root TEXT,
		target_root TEXT NOT NULL,

		payload JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts_event ON events(ts_event);
	CREATE INDEX IF NOT EXISTS idx_events_scene ON events(scene);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		version INTEGER NOT NULL,
		epoch INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// AppendEvent writes an event to the journal.
func (s *Store) AppendEvent(ctx context.Context, evt *Event) error {
	payload := evt.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			event_id, event_type, schema_version, ts_event,
			origin_kind, origin_id,
			scene, kind, source_root, target_root,
			payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(evt.EventID), string(evt.EventType), evt.SchemaVersion, evt.TsEvent.UTC().UnixNano(),
		evt.Source.OriginKind, evt.Source.OriginID,
		evt.Dimensions.Scene, evt.Dimensions.Kind, evt.Dimensions.SourceRoot, evt.Dimensions.TargetRoot,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

const eventColumns = `event_id, event_type, schema_version, ts_event,
	origin_kind, origin_id, scene, kind, source_root, target_root, payload`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		evt        Event
		id, typ    string
		ts         int64
		originKind sql.NullString
		originID   sql.NullString
		sourceRoot sql.NullString
		payload    string
	)
	if err := row.Scan(&id, &typ, &evt.SchemaVersion, &ts,
		&originKind, &originID,
		&evt.Dimensions.Scene, &evt.Dimensions.Kind, &sourceRoot, &evt.Dimensions.TargetRoot,
		&payload); err != nil {
		return nil, err
	}
	evt.EventID = EventID(id)
	evt.EventType = EventType(typ)
	evt.TsEvent = time.Unix(0, ts).UTC()
	evt.Source = EventSource{OriginKind: originKind.String, OriginID: originID.String}
	evt.Dimensions.SourceRoot = sourceRoot.String
	evt.Payload = []byte(payload)
	return &evt, nil
}

// GetEvent returns the event with the given id, or nil if there is none.
func (s *Store) GetEvent(ctx context.Context, id EventID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, string(id))
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return evt, nil
}

// QueryEvents returns matching events, newest first.
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		where = append(where, "ts_event >= ?")
		args = append(args, filter.From.UTC().UnixNano())
	}
	if !filter.To.IsZero() {
		where = append(where, "ts_event <= ?")
		args = append(args, filter.To.UTC().UnixNano())
	}
	if filter.Scene != "" {
		where = append(where, "scene = ?")
		args = append(args, filter.Scene)
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

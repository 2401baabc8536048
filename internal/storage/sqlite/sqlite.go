package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"focusloop/internal/cycle"
	"focusloop/internal/event"
	"focusloop/internal/storage"
)

type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

func NewSQLiteStore(dbPath string) storage.Storage {
	return &SQLiteStore{dbPath: dbPath}
}

const createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	type TEXT NOT NULL,
	app_name TEXT,
	window_title TEXT,
	value REAL,
	tag TEXT,
	notes TEXT,
	cycle_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);
`

// The snapshots table holds exactly one row (id = 1).
const createSnapshotsTableSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	phase TEXT NOT NULL,
	completed INTEGER NOT NULL,
	saved_at DATETIME NOT NULL,
	body TEXT NOT NULL
);
`

func (s *SQLiteStore) Init(ctx context.Context) error {
	// Ensure directory exists
	dir := filepath.Dir(s.dbPath)
	// Use 0750 for directory permissions
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	log.Info().Str("path", s.dbPath).Msg("Initializing SQLite database")
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000&_fk=true")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.db = db

	s.db.SetMaxOpenConns(1) // SQLite is best with a single writer connection
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(time.Minute * 5)

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, createEventsTableSQL); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to create events table: %w", err)
	}
	// Databases created before cycle ids were tracked lack the column.
	if err := s.ensureColumn(ctx, "events", "cycle_id", "TEXT"); err != nil {
		s.db.Close()
		return err
	}
	if _, err := s.db.ExecContext(ctx, createSnapshotsTableSQL); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	log.Info().Msg("Database initialized successfully")
	return nil
}

func (s *SQLiteStore) ensureColumn(ctx context.Context, table, column, decl string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("failed to scan %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s columns: %w", table, err)
	}
	rows.Close()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	log.Info().Str("table", table).Str("column", column).Msg("Migrated database schema")
	return nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, e event.Event) (int64, error) {
	query := `INSERT INTO events (timestamp, type, app_name, window_title, value, tag, notes, cycle_id)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, e.Timestamp.UTC(), e.Type, e.AppName, e.WindowTitle, e.Value, e.Tag, e.Notes, e.CycleID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error) {
	query := `SELECT id, timestamp, type, app_name, window_title, value, tag, notes, cycle_id
	          FROM events
	          WHERE timestamp >= ? AND timestamp <= ?`
	args := []interface{}{start.UTC(), end.UTC()}

	if len(eventTypes) > 0 {
		placeholders := strings.Repeat("?,", len(eventTypes)-1) + "?"
		query += fmt.Sprintf(" AND type IN (%s)", placeholders)
		for _, et := range eventTypes {
			args = append(args, et)
		}
	}

	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var appName sql.NullString
		var windowTitle sql.NullString
		var value sql.NullFloat64
		var tag sql.NullString
		var notes sql.NullString
		var cycleID sql.NullString

		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &appName, &windowTitle, &value, &tag, &notes, &cycleID); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.AppName = appName.String
		e.WindowTitle = windowTitle.String
		e.Value = value.Float64
		e.Tag = tag.String
		e.Notes = notes.String
		e.CycleID = cycleID.String
		events = append(events, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap cycle.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	kind := cycle.KindIdle
	if snap.Phase != nil {
		kind = snap.Phase.Kind()
	}
	query := `INSERT INTO snapshots (id, phase, completed, saved_at, body) VALUES (1, ?, ?, ?, ?)
	          ON CONFLICT(id) DO UPDATE SET phase = excluded.phase, completed = excluded.completed,
	          saved_at = excluded.saved_at, body = excluded.body`
	if _, err := s.db.ExecContext(ctx, query, string(kind), snap.Completed, snap.SavedAt.UTC(), string(body)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (cycle.Snapshot, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return cycle.Snapshot{}, false, nil
	}
	if err != nil {
		return cycle.Snapshot{}, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snap cycle.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return cycle.Snapshot{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		log.Info().Msg("Closing database connection")
		return s.db.Close()
	}
	return nil
}

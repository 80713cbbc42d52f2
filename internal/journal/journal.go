// Package journal persists emitted watcher events to an embedded SQLite
// database so tooling can query what changed recently. It records events,
// not watch state; nothing here survives into the next process's watches.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Event is one emitted watcher event.
type Event struct {
	// Kind is create, change, delete, or rename.
	Kind string
	// Path is the absolute location the event refers to. For renames this
	// is the new location.
	Path string
	// OldPath is the previous location, renames only.
	OldPath string
	// Root is the workspace root the event was observed under.
	Root string
	// ObservedAt is when the event was emitted.
	ObservedAt time.Time
}

// DB wraps the journal database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the journal database at path.
//
// The database runs in embedded mode with WAL for concurrent reads. The
// caller must Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the journal. Checkpoints WAL first so the file is complete.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint journal WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	db.conn = nil
	return nil
}

// initSchema creates the events table if needed. Idempotent.
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		path        TEXT NOT NULL,
		old_path    TEXT NOT NULL DEFAULT '',
		root        TEXT NOT NULL,
		observed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_observed_at ON events(observed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_events_path ON events(path);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record appends one event. A zero ObservedAt is filled with the current time.
func (db *DB) Record(e Event) error {
	if e.ObservedAt.IsZero() {
		e.ObservedAt = time.Now()
	}
	_, err := db.conn.Exec(
		"INSERT INTO events (kind, path, old_path, root, observed_at) VALUES (?, ?, ?, ?, ?)",
		e.Kind, e.Path, e.OldPath, e.Root, e.ObservedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (db *DB) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		"SELECT kind, path, old_path, root, observed_at FROM events ORDER BY observed_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var observedMs int64
		if err := rows.Scan(&e.Kind, &e.Path, &e.OldPath, &e.Root, &observedMs); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.ObservedAt = time.UnixMilli(observedMs)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Count returns the total number of recorded events.
func (db *DB) Count() (int, error) {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Package store manages the SQLite database shared with the dashboard
// application: sync configurations, item mappings, sensors, sensor readings,
// and the sync audit log.
//
// Only this package may open or query the database. All other packages
// receive a [*Store] and call its methods. Writes are independent statements
// and no transaction spans a whole sync run, so the engine tolerates a crash
// leaving a reading without its mapping timestamp.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_configs (
    id                 TEXT    PRIMARY KEY,
    endpoint_url       TEXT    NOT NULL,
    auth_token         TEXT    NOT NULL DEFAULT '',
    sync_interval_secs INTEGER NOT NULL DEFAULT 300,
    enabled            INTEGER NOT NULL DEFAULT 0,
    last_synced_at     TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS item_mappings (
    id                 TEXT    PRIMARY KEY,
    config_id          TEXT    NOT NULL,
    external_item_name TEXT    NOT NULL,
    external_item_type TEXT    NOT NULL DEFAULT '',
    display_label      TEXT    NOT NULL DEFAULT '',
    sensor_id          TEXT    NOT NULL DEFAULT '',
    sync_enabled       INTEGER NOT NULL DEFAULT 1,
    last_raw_value     TEXT    NOT NULL DEFAULT '',
    last_synced_at     TEXT    NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_mapping_item ON item_mappings (config_id, external_item_name);
CREATE INDEX        IF NOT EXISTS idx_mapping_cfg  ON item_mappings (config_id);

CREATE TABLE IF NOT EXISTS sensors (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    last_reading    REAL,
    last_reading_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sensor_readings (
    id          TEXT PRIMARY KEY,
    sensor_id   TEXT NOT NULL,
    value       REAL NOT NULL,
    recorded_at TEXT NOT NULL,
    FOREIGN KEY (sensor_id) REFERENCES sensors (id)
);

CREATE INDEX IF NOT EXISTS idx_reading_sensor ON sensor_readings (sensor_id, recorded_at);

CREATE TABLE IF NOT EXISTS sync_log (
    id            TEXT    PRIMARY KEY,
    config_id     TEXT    NOT NULL,
    trigger_kind  TEXT    NOT NULL,
    outcome       TEXT    NOT NULL,
    items_synced  INTEGER NOT NULL DEFAULT 0,
    error_summary TEXT    NOT NULL DEFAULT '',
    created_at    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_log_cfg ON sync_log (config_id, created_at);
`

// Error wraps a database failure so callers can tell "could not persist"
// apart from middleware failures without parsing message text. Flattened to
// a plain string at the HTTP boundary like every other internal error kind.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Store is the SQLite-backed repository.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default database path:
// ~/.local/share/habsync/habsync.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "habsync", "habsync.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema,
// and configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so row scanners can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

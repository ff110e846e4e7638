// Package state persists tracking records, handled comments, and the sync
// cursor in SQLite, with optional FTS5 search over synced resolutions.
package state

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is the current state schema, tracked via PRAGMA user_version.
const schemaVersion = 1

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	source_number INTEGER PRIMARY KEY,
	dest_number   INTEGER NOT NULL,
	fingerprint   TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	resolutions   TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS handled_comments (
	url TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS cursor (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	since TEXT NOT NULL
);
`

// DB wraps a sql.DB with state-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite state database and applies the schema.
// A database written by a newer ansuz version is rejected.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("state: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}

	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: read schema version: %w", err)
	}
	if version > schemaVersion {
		conn.Close()
		return nil, fmt.Errorf("state: unknown schema version %d (supported up to %d)", version, schemaVersion)
	}

	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: apply fts schema: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: set schema version: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

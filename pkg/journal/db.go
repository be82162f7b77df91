package journal

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	processed INTEGER NOT NULL DEFAULT 0,
	failed_units INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS failures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	sense_id TEXT NOT NULL,
	op TEXT NOT NULL,
	rel_type TEXT NOT NULL DEFAULT '',
	target TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL,
	at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id, sense_id)
`

// DBExecutor is an interface that allows functions to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// InitDB creates the journal tables if they do not exist.
func InitDB(db DBExecutor) error {
	for _, s := range strings.Split(schemaSQL, ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init journal schema: %w", err)
		}
	}
	return nil
}

// OpenDB opens the journal database at path and creates its tables.
func OpenDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One connection serializes concurrent writers and keeps ":memory:" a single database.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

package db

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/chris/chloe/internal/state"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// DB is the sqlite-backed state.Repository. Each user is one row holding the
// JSON-encoded record plus a version stamp used for optimistic concurrency.
type DB struct {
	conn   *sql.DB
	window int
	keys   state.KeyedMutex
}

func Open(path string, window int) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: sqlite serializes writers anyway, and ":memory:"
	// databases are per connection.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if window <= 0 {
		window = state.DefaultWindow
	}
	return &DB{conn: conn, window: window}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

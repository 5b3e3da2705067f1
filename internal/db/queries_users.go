package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/chris/chloe/internal/state"
)

// ErrVersionConflict is returned when a record kept changing underneath an
// update for every retry attempt.
var ErrVersionConflict = errors.New("version conflict")

const maxUpdateAttempts = 3

// Get returns the user's record, creating the default one on first contact.
func (d *DB) Get(ctx context.Context, id string) (*state.UserState, error) {
	st, _, found, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if found {
		return st, nil
	}
	return d.Update(ctx, id, func(*state.UserState) error { return nil })
}

// Update applies fn to the user's record and writes it back only if nobody
// else bumped the version in the meantime; on conflict it reloads and retries.
func (d *DB) Update(ctx context.Context, id string, fn func(*state.UserState) error) (*state.UserState, error) {
	unlock := d.keys.Lock(id)
	defer unlock()

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		st, version, found, err := d.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(st); err != nil {
			return nil, err
		}
		st.Normalize(d.window)
		st.Version = version + 1
		body, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("encoding user %s: %w", id, err)
		}

		var res sql.Result
		if found {
			res, err = d.conn.ExecContext(ctx,
				"UPDATE users SET state = ?, version = ?, updated_at = datetime('now') WHERE id = ? AND version = ?",
				string(body), st.Version, id, version,
			)
		} else {
			res, err = d.conn.ExecContext(ctx,
				"INSERT INTO users (id, state, version) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING",
				id, string(body), st.Version,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("saving user %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return st, nil
		}
		log.Printf("db: user %s changed concurrently (attempt %d), retrying", id, attempt+1)
	}
	return nil, fmt.Errorf("updating user %s: %w", id, ErrVersionConflict)
}

// SaveAll upserts every record in one transaction.
func (d *DB) SaveAll(ctx context.Context, all map[string]*state.UserState) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting import: %w", err)
	}
	defer tx.Rollback()
	for id, st := range all {
		c := st.Clone()
		c.Normalize(d.window)
		body, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding user %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, state, version) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET state = excluded.state, version = users.version + 1, updated_at = datetime('now')`,
			id, string(body), c.Version,
		)
		if err != nil {
			return fmt.Errorf("saving user %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	return nil
}

// Snapshot returns a copy of every record.
func (d *DB) Snapshot(ctx context.Context) (map[string]*state.UserState, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT id, state, version FROM users")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()
	out := make(map[string]*state.UserState)
	for rows.Next() {
		var id, body string
		var version int64
		if err := rows.Scan(&id, &body, &version); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out[id] = d.decode(id, body, version)
	}
	return out, rows.Err()
}

// IDs returns every known user id in ascending order.
func (d *DB) IDs(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT id FROM users ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing user ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DB) load(ctx context.Context, id string) (*state.UserState, int64, bool, error) {
	var body string
	var version int64
	err := d.conn.QueryRowContext(ctx, "SELECT state, version FROM users WHERE id = ?", id).Scan(&body, &version)
	if err == sql.ErrNoRows {
		return state.New(), 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("loading user %s: %w", id, err)
	}
	return d.decode(id, body, version), version, true, nil
}

// decode never fails: a row that no longer parses is reset to defaults so one
// bad record cannot take the whole bot down.
func (d *DB) decode(id, body string, version int64) *state.UserState {
	st := state.New()
	if err := json.Unmarshal([]byte(body), st); err != nil {
		log.Printf("db: user %s malformed, resetting to defaults: %v", id, err)
		st = state.New()
	}
	st.Normalize(d.window)
	st.Version = version
	return st
}

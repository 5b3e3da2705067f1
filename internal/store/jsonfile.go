package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chris/chloe/internal/state"
)

// FileStore keeps every user record in one JSON document mapping user id to
// state. The whole document is rewritten atomically after each mutation, but
// mutations themselves are per user, so concurrent handlers never clobber
// each other's records.
type FileStore struct {
	path   string
	window int

	keys state.KeyedMutex

	mu    sync.RWMutex
	users map[string]*state.UserState
	// writeMu orders document writes so an older snapshot never lands last.
	writeMu sync.Mutex
}

// Open loads the document at path. A missing file yields an empty store and is
// created on disk; a file that is not a JSON object of records fails with
// *state.CorruptStateError. Individual malformed records are reset to
// defaults.
func Open(path string, window int) (*FileStore, error) {
	if window <= 0 {
		window = state.DefaultWindow
	}
	fs := &FileStore{path: path, window: window, users: make(map[string]*state.UserState)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
		if err := fs.write(fs.users); err != nil {
			return nil, err
		}
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}

	users, err := Decode(data, window)
	if err != nil {
		return nil, &state.CorruptStateError{Path: path, Err: err}
	}
	fs.users = users
	return fs, nil
}

// Decode parses a state document. Records that fail to decode are replaced by
// fresh defaults and logged; only a malformed top-level document is an error.
func Decode(data []byte, window int) (map[string]*state.UserState, error) {
	users := make(map[string]*state.UserState)
	if len(bytes.TrimSpace(data)) == 0 {
		return users, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for id, rec := range raw {
		st := state.New()
		if err := json.Unmarshal(rec, st); err != nil {
			log.Printf("store: record %s malformed, resetting to defaults: %v", id, err)
			st = state.New()
		}
		if st.Normalize(window) {
			log.Printf("store: record %s repaired", id)
		}
		users[id] = st
	}
	return users, nil
}

// Encode renders users in the persisted document layout.
func Encode(users map[string]*state.UserState) ([]byte, error) {
	if users == nil {
		users = map[string]*state.UserState{}
	}
	b, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return b, nil
}

func (fs *FileStore) Path() string { return fs.path }

func (fs *FileStore) Get(ctx context.Context, id string) (*state.UserState, error) {
	fs.mu.RLock()
	st, ok := fs.users[id]
	fs.mu.RUnlock()
	if ok {
		return st.Clone(), nil
	}
	return fs.Update(ctx, id, func(*state.UserState) error { return nil })
}

func (fs *FileStore) Update(ctx context.Context, id string, fn func(*state.UserState) error) (*state.UserState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := fs.keys.Lock(id)
	defer unlock()

	fs.mu.RLock()
	cur, ok := fs.users[id]
	fs.mu.RUnlock()

	var next *state.UserState
	if ok {
		next = cur.Clone()
	} else {
		next = state.New()
	}
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Normalize(fs.window)
	next.Version++

	fs.mu.Lock()
	fs.users[id] = next
	fs.mu.Unlock()

	if err := fs.flush(); err != nil {
		fs.mu.Lock()
		if ok {
			fs.users[id] = cur
		} else {
			delete(fs.users, id)
		}
		fs.mu.Unlock()
		return nil, err
	}
	return next.Clone(), nil
}

func (fs *FileStore) SaveAll(ctx context.Context, all map[string]*state.UserState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	users := make(map[string]*state.UserState, len(all))
	for id, st := range all {
		c := st.Clone()
		c.Normalize(fs.window)
		users[id] = c
	}
	fs.mu.Lock()
	fs.users = users
	fs.mu.Unlock()
	return fs.flush()
}

func (fs *FileStore) Snapshot(ctx context.Context) (map[string]*state.UserState, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make(map[string]*state.UserState, len(fs.users))
	for id, st := range fs.users {
		out[id] = st.Clone()
	}
	return out, nil
}

func (fs *FileStore) IDs(ctx context.Context) ([]string, error) {
	fs.mu.RLock()
	ids := make([]string, 0, len(fs.users))
	for id := range fs.users {
		ids = append(ids, id)
	}
	fs.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (fs *FileStore) flush() error {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	fs.mu.RLock()
	users := make(map[string]*state.UserState, len(fs.users))
	for id, st := range fs.users {
		users[id] = st
	}
	fs.mu.RUnlock()
	return fs.write(users)
}

// write replaces the document via a temp file + rename so a crash never
// leaves a half-written file behind.
func (fs *FileStore) write(users map[string]*state.UserState) error {
	b, err := Encode(users)
	if err != nil {
		return err
	}
	return WriteFileAtomic(fs.path, b)
}

// WriteFileAtomic writes data next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

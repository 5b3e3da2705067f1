package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Repository persists UserState records keyed by an opaque user id.
//
// Update is the only way handlers mutate a record: fn runs on a private copy
// while the user's key is locked, and the result is persisted before the lock
// is released. A failing fn leaves the stored record untouched.
type Repository interface {
	Get(ctx context.Context, id string) (*UserState, error)
	Update(ctx context.Context, id string, fn func(*UserState) error) (*UserState, error)
	SaveAll(ctx context.Context, all map[string]*UserState) error
	Snapshot(ctx context.Context) (map[string]*UserState, error)
	IDs(ctx context.Context) ([]string, error)
}

// ErrCorruptState is matched by every CorruptStateError.
var ErrCorruptState = errors.New("corrupt state")

// CorruptStateError means the backing artifact exists but is not a valid
// user-state document.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state in %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }

// KeyedMutex serializes work per key. Entries are reference counted so the
// map does not grow with every user ever seen.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is held and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

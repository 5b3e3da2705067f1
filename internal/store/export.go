package store

import (
	"context"
	"fmt"
	"os"

	"github.com/chris/chloe/internal/state"
)

// ExportJSON writes every record of repo to path in the document layout.
func ExportJSON(ctx context.Context, repo state.Repository, path string) (int, error) {
	users, err := repo.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshotting users: %w", err)
	}
	b, err := Encode(users)
	if err != nil {
		return 0, err
	}
	if err := WriteFileAtomic(path, b); err != nil {
		return 0, fmt.Errorf("exporting to %s: %w", path, err)
	}
	return len(users), nil
}

// ImportJSON loads a document from path and persists it into repo as a whole.
func ImportJSON(ctx context.Context, repo state.Repository, path string, window int) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	users, err := Decode(data, window)
	if err != nil {
		return 0, &state.CorruptStateError{Path: path, Err: err}
	}
	if err := repo.SaveAll(ctx, users); err != nil {
		return 0, fmt.Errorf("importing users: %w", err)
	}
	return len(users), nil
}

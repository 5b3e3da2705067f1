package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/chris/chloe/internal/state"
	"github.com/chris/chloe/internal/store"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func openStore(t *testing.T) *store.FileStore {
	t.Helper()
	fs, err := store.Open(filepath.Join(t.TempDir(), "memory.json"), state.DefaultWindow)
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestStart_RegistersJobsAndSweepsOnce(t *testing.T) {
	sw := &countingSweeper{}
	s := New(sw, openStore(t), Config{
		SweepCron:    "@every 30m",
		SnapshotCron: "0 3 * * *",
		SnapshotPath: filepath.Join(t.TempDir(), "snapshot.json"),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	if s.Jobs() != 2 {
		t.Errorf("jobs = %d, want 2", s.Jobs())
	}
	if sw.calls.Load() != 1 {
		t.Errorf("sweeps = %d, want 1 at startup", sw.calls.Load())
	}
}

func TestStart_InvalidCron(t *testing.T) {
	s := New(&countingSweeper{}, openStore(t), Config{SweepCron: "every now and then"})
	if err := s.Start(); err == nil {
		t.Error("expected an error for an invalid cron expression")
	}
}

func TestStart_NothingConfigured(t *testing.T) {
	sw := &countingSweeper{}
	s := New(sw, openStore(t), Config{})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if s.Jobs() != 0 || sw.calls.Load() != 0 {
		t.Errorf("jobs = %d, sweeps = %d; want none", s.Jobs(), sw.calls.Load())
	}
}

func TestRunSweep_ErrorIsLogged(t *testing.T) {
	sw := &countingSweeper{err: errors.New("boom")}
	s := New(sw, openStore(t), Config{})
	s.RunSweep()
	if sw.calls.Load() != 1 {
		t.Error("sweep should have run")
	}
}

func TestRunSnapshot(t *testing.T) {
	repo := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		if _, err := repo.Update(ctx, id, func(st *state.UserState) error {
			st.AddFact("j'aime le thé")
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s := New(nil, repo, Config{SnapshotPath: path})
	s.RunSnapshot()

	restored, err := store.Open(path, state.DefaultWindow)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	ids, _ := restored.IDs(ctx)
	if len(ids) != 2 {
		t.Errorf("snapshot has %d users, want 2", len(ids))
	}
}

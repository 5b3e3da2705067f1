package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chris/chloe/internal/state"
	"github.com/chris/chloe/internal/store"
	"github.com/robfig/cron/v3"
)

// Sweeper re-arms initiative timers for eligible users.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Config struct {
	SweepCron    string // empty disables the initiative sweep
	SnapshotCron string // empty disables snapshots
	SnapshotPath string
	JobTimeout   time.Duration
}

// Scheduler runs the periodic background jobs: the initiative sweep and
// the JSON snapshot of every user record.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	sweeper Sweeper
	repo    state.Repository

	mu       sync.Mutex
	entryIDs map[string]cron.EntryID // job name -> cron entry
}

func New(sweeper Sweeper, repo state.Repository, cfg Config) *Scheduler {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	return &Scheduler{
		cron:     cron.New(),
		cfg:      cfg,
		sweeper:  sweeper,
		repo:     repo,
		entryIDs: make(map[string]cron.EntryID),
	}
}

// Start registers the configured jobs, runs one sweep right away so timers
// lost in a restart come back, and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.cfg.SweepCron != "" && s.sweeper != nil {
		if err := s.add("initiative-sweep", s.cfg.SweepCron, s.RunSweep); err != nil {
			return err
		}
		s.RunSweep()
	}
	if s.cfg.SnapshotCron != "" && s.cfg.SnapshotPath != "" {
		if err := s.add("snapshot", s.cfg.SnapshotCron, s.RunSnapshot); err != nil {
			return err
		}
	}
	s.cron.Start()
	log.Printf("scheduler: started with %d job(s)", s.Jobs())
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entryIDs)
}

func (s *Scheduler) add(name, spec string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entryIDs[name]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron %q for %s: %w", spec, name, err)
	}
	s.entryIDs[name] = id
	return nil
}

func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		log.Printf("scheduler[initiative-sweep]: %v", err)
		return
	}
	if n > 0 {
		log.Printf("scheduler[initiative-sweep]: armed %d initiative(s)", n)
	}
}

func (s *Scheduler) RunSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	n, err := store.ExportJSON(ctx, s.repo, s.cfg.SnapshotPath)
	if err != nil {
		log.Printf("scheduler[snapshot]: %v", err)
		return
	}
	log.Printf("scheduler[snapshot]: wrote %d user(s) to %s", n, s.cfg.SnapshotPath)
}

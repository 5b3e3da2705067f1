package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chris/chloe/config"
	"github.com/chris/chloe/internal/db"
	"github.com/chris/chloe/internal/state"
)

func TestOpenRepo_Backends(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		StoreBackend: "json",
		MemoryFile:   filepath.Join(dir, "memory.json"),
		DatabasePath: filepath.Join(dir, "chloe.db"),
	}
	repo, journal, closeRepo, err := openRepo(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if repo == nil || journal != nil {
		t.Errorf("json backend: repo = %v, journal = %v", repo, journal)
	}
	closeRepo()

	cfg.StoreBackend = "sqlite"
	repo, journal, closeRepo, err = openRepo(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if repo == nil || journal == nil {
		t.Error("sqlite backend should also journal initiatives")
	}
	closeRepo()

	cfg.StoreBackend = "redis"
	if _, _, _, err := openRepo(cfg); err == nil {
		t.Error("expected unknown backend error")
	}
}

func TestRunCommand_ExportImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := &config.Config{StoreBackend: "json", MemoryFile: filepath.Join(dir, "memory.json")}
	repo, _, closeRepo, err := openRepo(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeRepo()
	if _, err := repo.Update(ctx, "7", func(st *state.UserState) error {
		st.RelationshipLevel = 42
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "export.json")
	if err := runCommand(ctx, cfg, repo, nil, []string{"export", out}); err != nil {
		t.Fatal(err)
	}

	cfg2 := &config.Config{StoreBackend: "sqlite", DatabasePath: ":memory:"}
	repo2, journal, closeRepo2, err := openRepo(cfg2)
	if err != nil {
		t.Fatal(err)
	}
	defer closeRepo2()
	if err := runCommand(ctx, cfg2, repo2, journal, []string{"import", out}); err != nil {
		t.Fatal(err)
	}
	st, err := repo2.Get(ctx, "7")
	if err != nil {
		t.Fatal(err)
	}
	if st.RelationshipLevel != 42 {
		t.Errorf("level = %d, want 42", st.RelationshipLevel)
	}
}

func TestRunCommand_Usage(t *testing.T) {
	ctx := context.Background()
	for _, args := range [][]string{{"export"}, {"bogus"}, {"initiatives"}} {
		if err := runCommand(ctx, &config.Config{}, nil, nil, args); err == nil {
			t.Errorf("%v: expected usage error", args)
		}
	}
	if err := runCommand(ctx, &config.Config{}, nil, nil, []string{"initiatives", "1"}); err == nil {
		t.Error("initiatives without a journal should fail")
	}
}

func TestPrintInitiatives(t *testing.T) {
	ctx := context.Background()
	journal, err := db.Open(":memory:", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	var buf bytes.Buffer
	if err := printInitiatives(ctx, &buf, journal, "1", 5); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no initiatives") {
		t.Errorf("got %q", buf.String())
	}

	if _, err := journal.Get(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if err := journal.RecordInitiative(ctx, "1", "Tu me manques un peu 🙂"); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := printInitiatives(ctx, &buf, journal, "1", 5); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Tu me manques un peu") {
		t.Errorf("got %q", buf.String())
	}
}

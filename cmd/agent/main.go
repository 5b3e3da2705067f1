package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chris/chloe/config"
	"github.com/chris/chloe/internal/console"
	"github.com/chris/chloe/internal/db"
	"github.com/chris/chloe/internal/discord"
	"github.com/chris/chloe/internal/engine"
	"github.com/chris/chloe/internal/llm"
	"github.com/chris/chloe/internal/scheduler"
	"github.com/chris/chloe/internal/service"
	"github.com/chris/chloe/internal/speech"
	"github.com/chris/chloe/internal/state"
	"github.com/chris/chloe/internal/status"
	"github.com/chris/chloe/internal/store"
	"github.com/chris/chloe/internal/telegram"
	"github.com/dustin/go-humanize"
)

const usage = `usage: chloe [command]

commands:
  (none)                  run the bot on the configured transport
  export <path>           write every user record to a JSON document
  import <path>           replace every user record with a JSON document
  initiatives <user> [n]  list the last unprompted messages (sqlite only)
  install | uninstall     manage the launchd agent (macOS)
  start | stop | restart  control the launchd agent
  status | logs           inspect the launchd agent
`

func main() {
	if len(os.Args) > 1 {
		if cmd, ok := service.Command(os.Args[1]); ok {
			if err := cmd(); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, journal, closeRepo, err := openRepo(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer closeRepo()

	args := os.Args[1:]
	if len(args) == 0 {
		if err := run(ctx, cfg, repo, journal); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}
	if err := runCommand(ctx, cfg, repo, journal, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openRepo opens the configured backend. The sqlite backend also keeps the
// initiative journal.
func openRepo(cfg *config.Config) (state.Repository, *db.DB, func(), error) {
	switch cfg.StoreBackend {
	case "json":
		fs, err := store.Open(cfg.MemoryFile, cfg.HistoryWindow)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Printf("store: %s", fs.Path())
		return fs, nil, func() {}, nil
	case "sqlite":
		database, err := db.Open(cfg.DatabasePath, cfg.HistoryWindow)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Printf("store: sqlite %s", cfg.DatabasePath)
		return database, database, func() { database.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

func runCommand(ctx context.Context, cfg *config.Config, repo state.Repository, journal *db.DB, args []string) error {
	switch args[0] {
	case "export":
		if len(args) != 2 {
			return errors.New(usage)
		}
		n, err := store.ExportJSON(ctx, repo, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("exported %d user(s) to %s\n", n, args[1])
	case "import":
		if len(args) != 2 {
			return errors.New(usage)
		}
		n, err := store.ImportJSON(ctx, repo, args[1], cfg.HistoryWindow)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d user(s) from %s\n", n, args[1])
	case "initiatives":
		if len(args) < 2 {
			return errors.New(usage)
		}
		if journal == nil {
			return errors.New("the initiative journal needs STORE_BACKEND=sqlite")
		}
		limit := 10
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid count %q: %w", args[2], err)
			}
			limit = n
		}
		return printInitiatives(ctx, os.Stdout, journal, args[1], limit)
	default:
		return errors.New(usage)
	}
	return nil
}

func printInitiatives(ctx context.Context, w io.Writer, journal *db.DB, userID string, limit int) error {
	list, err := journal.RecentInitiatives(ctx, userID, limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(w, "no initiatives for %s\n", userID)
		return nil
	}
	for _, in := range list {
		when := in.CreatedAt
		if t, err := time.ParseInLocation(time.DateTime, in.CreatedAt, time.UTC); err == nil {
			when = humanize.Time(t)
		}
		fmt.Fprintf(w, "%-16s %s\n", when, in.Content)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, repo state.Repository, journal *db.DB) error {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	transport, err := cfg.ResolveTransport()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := llm.NewClient(cfg.Provider())
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	guard := llm.NewGuard(client, cfg.Guard())

	var synth speech.Synthesizer
	if cfg.Features.Voice && cfg.OpenAIKey != "" {
		synth = speech.NewOpenAISynthesizer(cfg.OpenAIKey, cfg.TTSModel, cfg.TTSVoice, "")
	} else if cfg.Features.Voice {
		log.Println("speech: OPENAI_API_KEY not set, voice replies disabled")
	}

	deps := engine.Deps{Repo: repo, Guard: guard, Synth: synth}
	if journal != nil {
		deps.Journal = journal
	}

	var serve func(ctx context.Context, h *engine.Engine) error
	switch transport {
	case "telegram":
		bot, err := telegram.NewBot(cfg.TelegramToken, cfg.SendTimeout)
		if err != nil {
			return err
		}
		deps.Sender = bot
		serve = func(ctx context.Context, h *engine.Engine) error { return bot.Run(ctx, h) }
	case "discord":
		bot, err := discord.NewBot(cfg.DiscordToken)
		if err != nil {
			return err
		}
		deps.Sender = bot
		serve = func(ctx context.Context, h *engine.Engine) error {
			if err := bot.Start(h); err != nil {
				return err
			}
			defer bot.Close()
			log.Println("bot is running. Press Ctrl+C to exit.")
			<-ctx.Done()
			return nil
		}
	default:
		c := console.New(cfg.ConsoleUser, os.Stdin, os.Stdout)
		deps.Sender = c
		serve = func(ctx context.Context, h *engine.Engine) error {
			// Stdin reads do not observe ctx, so stop waiting on a signal.
			done := make(chan error, 1)
			go func() { done <- c.Run(ctx, h) }()
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return nil
			}
		}
	}

	eng := engine.New(engineCfg, deps)
	defer eng.Close()

	schedCfg := scheduler.Config{
		SnapshotCron: cfg.SnapshotCron,
		SnapshotPath: cfg.SnapshotPath,
	}
	if engineCfg.Initiative {
		schedCfg.SweepCron = cfg.InitiativeSweepCron
	}
	sched := scheduler.New(eng, repo, schedCfg)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.StatusAddr != "" {
		srv := status.New(cfg.StatusAddr, repo)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("status: %v", err)
			}
		}()
	}

	log.Printf("chloe: running on %s", transport)
	err = serve(ctx, eng)
	log.Println("shutting down.")
	return err
}

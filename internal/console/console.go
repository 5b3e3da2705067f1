package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chris/chloe/internal/engine"
	"github.com/chris/chloe/internal/speech"
)

type Handler interface {
	HandleMessage(ctx context.Context, in engine.Inbound) error
}

// Console is a terminal transport for a single local user. Lines read from
// in are messages; replies are written to out.
type Console struct {
	userID string
	in     io.Reader

	mu  sync.Mutex
	out io.Writer
}

func New(userID string, in io.Reader, out io.Writer) *Console {
	return &Console{userID: userID, in: in, out: out}
}

// Run reads until EOF, "/quit" or ctx is cancelled. Messages are handled
// one at a time.
func (c *Console) Run(ctx context.Context, h Handler) error {
	scanner := bufio.NewScanner(c.in)
	c.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			c.prompt()
			continue
		case "/quit", "/exit":
			return nil
		}
		err := h.HandleMessage(ctx, engine.Inbound{UserID: c.userID, Text: line, Kind: engine.KindText})
		if err != nil && !errors.Is(err, engine.ErrSuperseded) {
			c.printf("(erreur: %v)\n", err)
		}
		c.prompt()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func (c *Console) SendText(ctx context.Context, userID, text string) error {
	c.printf("Chloé: %s\n", text)
	return nil
}

func (c *Console) SendVoice(ctx context.Context, userID string, art *speech.Artifact) error {
	c.printf("Chloé: 🎙️ message vocal (%s)\n", art.Path)
	return nil
}

func (c *Console) prompt() {
	c.printf("> ")
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

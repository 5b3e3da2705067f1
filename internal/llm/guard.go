package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
)

// Apology is sent in place of a reply when the model cannot be reached.
const Apology = "Hmm… attends une seconde, j'ai buggué là 😅"

var ErrEmptyReply = errors.New("empty reply")

type GuardConfig struct {
	Timeout    time.Duration // per attempt
	Retries    int           // extra attempts after the first
	RetryDelay time.Duration
	RatePerMin int // 0 disables the limiter
	MaxTokens  int // history budget, 0 disables trimming
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:    30 * time.Second,
		Retries:    1,
		RetryDelay: time.Second,
		RatePerMin: 30,
		MaxTokens:  6000,
	}
}

// Guard bounds every model call: it waits on a shared rate limiter, applies
// a per-attempt timeout and retries once before giving up.
type Guard struct {
	client  Client
	cfg     GuardConfig
	limiter *rate.Limiter
}

func NewGuard(client Client, cfg GuardConfig) *Guard {
	g := &Guard{client: client, cfg: cfg}
	if cfg.RatePerMin > 0 {
		burst := max(1, cfg.RatePerMin/10)
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), burst)
	}
	return g
}

// Complete returns the model's reply text or the last error once all
// attempts are exhausted.
func (g *Guard) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	messages = TrimMessages(messages, g.cfg.MaxTokens)

	var lastErr error
	for attempt := 0; attempt <= g.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.cfg.RetryDelay):
			}
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		text, err := g.attempt(ctx, systemPrompt, messages)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("llm: attempt %d failed: %v", attempt+1, err)
	}
	return "", lastErr
}

func (g *Guard) attempt(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	resp, err := g.client.Chat(ctx, systemPrompt, messages)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Content == "" {
		return "", ErrEmptyReply
	}
	return resp.Content, nil
}

// Reply is Complete with the apology substituted on failure. ok is false
// when the apology was used.
func (g *Guard) Reply(ctx context.Context, systemPrompt string, messages []Message) (text string, ok bool) {
	text, err := g.Complete(ctx, systemPrompt, messages)
	if err != nil {
		log.Printf("llm: falling back to apology: %v", err)
		return Apology, false
	}
	return text, true
}

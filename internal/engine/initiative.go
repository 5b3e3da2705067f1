package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/chris/chloe/internal/llm"
	"github.com/chris/chloe/internal/metrics"
	"github.com/chris/chloe/internal/persona"
	"github.com/chris/chloe/internal/state"
)

var errNotEligible = errors.New("not eligible for an initiative")

// MaybeSchedule arms the initiative timer for id, replacing any pending
// one. Eligibility is only checked when the timer fires.
func (e *Engine) MaybeSchedule(id string) {
	if !e.cfg.Initiative {
		return
	}
	d := e.cfg.InitiativeDelay.Pick(e.rnd.Float64())

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if t, ok := e.timers[id]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = e.afterFunc(d, func() {
		e.mu.Lock()
		if e.timers[id] == t {
			delete(e.timers, id)
		}
		e.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ModelTimeout+e.cfg.SendTimeout)
		defer cancel()
		if _, err := e.Fire(ctx, id); err != nil {
			log.Printf("engine: initiative for %s: %v", id, err)
		}
	})
	e.timers[id] = t
}

// Pending reports whether an initiative timer is armed for id.
func (e *Engine) Pending(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[id]
	return ok
}

// Fire sends an unprompted message to id if the relationship is close
// enough and the cooldown has elapsed; otherwise it does nothing. It reports
// whether a message was sent. A model failure sends nothing.
func (e *Engine) Fire(ctx context.Context, id string) (bool, error) {
	now := e.now()
	st, err := e.repo.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("loading state: %w", err)
	}
	if !e.Eligible(st, now) {
		return false, nil
	}

	prompt := e.composer.Build(st, persona.Input{Mode: st.Mode, Now: now, Initiative: true})
	text, err := e.guard.Complete(ctx, prompt.System, llm.FromTurns(prompt.History))
	if err != nil {
		metrics.ModelFailures.Inc()
		return false, fmt.Errorf("composing initiative: %w", err)
	}

	_, err = e.repo.Update(ctx, id, func(st *state.UserState) error {
		if !e.Eligible(st, now) {
			return errNotEligible
		}
		st.LastInitiative = now
		st.AppendTurn(state.RoleAssistant, text, now, e.cfg.Persona.Window)
		return nil
	})
	if errors.Is(err, errNotEligible) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("recording initiative: %w", err)
	}

	if err := e.sendText(ctx, id, text); err != nil {
		return false, err
	}
	metrics.InitiativesFired.Inc()
	metrics.RepliesSent.WithLabelValues(string(persona.ChannelText)).Inc()
	log.Printf("engine: initiative sent to %s", id)

	if e.journal != nil {
		if err := e.journal.RecordInitiative(ctx, id, text); err != nil {
			log.Printf("engine: journaling initiative for %s: %v", id, err)
		}
	}
	return true, nil
}

// Eligible is the initiative gate: level at or above InitiativeLevel and no
// initiative within the cooldown.
func (e *Engine) Eligible(st *state.UserState, now time.Time) bool {
	if !e.cfg.Initiative || st.RelationshipLevel < e.cfg.InitiativeLevel {
		return false
	}
	return st.LastInitiative.IsZero() || now.Sub(st.LastInitiative) > e.cfg.InitiativeCooldown
}

// Sweep arms a timer for every eligible user that has none. Timers live in
// memory, so this is what brings initiatives back after a restart.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if !e.cfg.Initiative {
		return 0, nil
	}
	ids, err := e.repo.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}
	now := e.now()
	armed := 0
	for _, id := range ids {
		if e.Pending(id) {
			continue
		}
		st, err := e.repo.Get(ctx, id)
		if err != nil {
			log.Printf("engine: sweep: loading %s: %v", id, err)
			continue
		}
		if e.Eligible(st, now) {
			e.MaybeSchedule(id)
			armed++
		}
	}
	return armed, nil
}

func defaultRand() persona.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().Unix())))
}

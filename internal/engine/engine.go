package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chris/chloe/internal/llm"
	"github.com/chris/chloe/internal/metrics"
	"github.com/chris/chloe/internal/persona"
	"github.com/chris/chloe/internal/speech"
	"github.com/chris/chloe/internal/state"
)

const (
	Greeting    = "Hey 🙂\nMoi c'est Chloé.\nJe suis là, parle-moi."
	DeclineText = "Je ne peux lire que les messages écrits pour l'instant 🙈 Écris-moi plutôt !"
)

var (
	ErrMalformedEvent = errors.New("malformed inbound event")
	ErrSuperseded     = errors.New("reply superseded by a newer message")
)

type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
	KindMedia Kind = "media"
)

// Inbound is one message received by a transport.
type Inbound struct {
	UserID string
	Text   string
	Kind   Kind // empty means text
}

// Sender delivers replies through a transport.
type Sender interface {
	SendText(ctx context.Context, userID, text string) error
	SendVoice(ctx context.Context, userID string, art *speech.Artifact) error
}

// Typer is implemented by senders that can show a typing indicator.
type Typer interface {
	Typing(ctx context.Context, userID string) error
}

// Journal keeps a log of unprompted messages.
type Journal interface {
	RecordInitiative(ctx context.Context, userID, content string) error
}

type Deps struct {
	Repo    state.Repository
	Guard   *llm.Guard
	Sender  Sender
	Synth   speech.Synthesizer // nil disables voice
	Journal Journal            // optional
	Rand    persona.Rand
	Now     func() time.Time
}

// Engine turns inbound messages into state updates and replies, and sends
// unprompted messages to users it has grown close to.
type Engine struct {
	cfg       Config
	repo      state.Repository
	guard     *llm.Guard
	sender    Sender
	synth     speech.Synthesizer
	journal   Journal
	rnd       persona.Rand
	now       func() time.Time
	delay     func(ctx context.Context, d time.Duration) error
	afterFunc func(d time.Duration, f func()) *time.Timer

	tracker   *persona.Tracker
	extractor *persona.Extractor
	composer  *persona.Composer
	selector  *persona.Selector

	mu      sync.Mutex
	pending map[string]*pendingReply
	timers  map[string]*time.Timer
	closed  bool
}

type pendingReply struct {
	cancel context.CancelCauseFunc
}

func New(cfg Config, deps Deps) *Engine {
	rnd := deps.Rand
	if rnd == nil {
		rnd = persona.LockedRand(defaultRand())
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	synth := deps.Synth
	if synth == nil {
		synth = speech.Disabled{}
		cfg.Persona.Voice = false
	}
	return &Engine{
		cfg:       cfg,
		repo:      deps.Repo,
		guard:     deps.Guard,
		sender:    deps.Sender,
		synth:     synth,
		journal:   deps.Journal,
		rnd:       rnd,
		now:       now,
		delay:     Delay,
		afterFunc: time.AfterFunc,
		tracker:   persona.NewTracker(cfg.Persona),
		extractor: persona.NewExtractor(cfg.Persona),
		composer:  persona.NewComposer(cfg.Persona, rnd),
		selector:  persona.NewSelector(cfg.Persona, rnd),
		pending:   make(map[string]*pendingReply),
		timers:    make(map[string]*time.Timer),
	}
}

// HandleMessage processes one inbound message end to end: state update,
// thinking delay, model reply, channel choice, delivery and initiative
// scheduling. A newer message from the same user cancels this one's
// pending reply with ErrSuperseded.
func (e *Engine) HandleMessage(ctx context.Context, in Inbound) error {
	id := strings.TrimSpace(in.UserID)
	if id == "" {
		return fmt.Errorf("missing user id: %w", ErrMalformedEvent)
	}
	if in.Kind != "" && in.Kind != KindText {
		return e.sendText(ctx, id, DeclineText)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return fmt.Errorf("empty text from %s: %w", id, ErrMalformedEvent)
	}
	if isCommand(text, "start") {
		return e.sendText(ctx, id, Greeting)
	}

	ctx, done := e.begin(ctx, id)
	defer done()

	now := e.now()
	emotion := persona.Classify(text)
	mode := state.ModeNeutral
	if e.cfg.Persona.ModeDetection {
		mode = persona.DetectMode(text)
	}

	var before *state.UserState
	_, err := e.repo.Update(ctx, id, func(st *state.UserState) error {
		if e.extractor.RecordAbsence(st, now) {
			log.Printf("engine: %s came back after an absence", id)
		}
		e.tracker.Update(st, emotion, now)
		if ex, ok := e.extractor.Extract(text); ok {
			e.extractor.Apply(st, ex)
		}
		st.Mode = mode
		st.Stats.Messages++
		st.LastSeen = now
		before = st.Clone()
		st.AppendTurn(state.RoleUser, text, now, e.cfg.Persona.Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating state for %s: %w", id, err)
	}
	metrics.MessagesReceived.WithLabelValues(string(emotion)).Inc()

	if t, ok := e.sender.(Typer); ok {
		if err := t.Typing(ctx, id); err != nil {
			log.Printf("engine: typing indicator for %s: %v", id, err)
		}
	}
	if e.cfg.ThinkingDelay {
		if err := e.delay(ctx, e.thinkingDelay(now)); err != nil {
			return e.interrupted(ctx, id, err)
		}
	}

	prompt := e.composer.Build(before, persona.Input{Text: text, Emotion: emotion, Mode: mode, Now: now})
	reply, ok := e.reply(ctx, prompt)
	if ctx.Err() != nil {
		return e.interrupted(ctx, id, ctx.Err())
	}

	channel := persona.ChannelText
	if ok {
		_, err = e.repo.Update(ctx, id, func(st *state.UserState) error {
			channel = e.selector.Choose(st, emotion)
			st.AppendTurn(state.RoleAssistant, reply, e.now(), e.cfg.Persona.Window)
			return nil
		})
		if err != nil {
			log.Printf("engine: recording reply for %s: %v", id, err)
		}
	}

	if err := e.deliver(ctx, id, reply, channel, mode); err != nil {
		if ctx.Err() != nil {
			return e.interrupted(ctx, id, err)
		}
		return err
	}
	e.MaybeSchedule(id)
	return nil
}

// begin registers the reply for id as the pending one, cancelling any
// earlier pending reply for the same user.
func (e *Engine) begin(ctx context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	p := &pendingReply{cancel: cancel}

	e.mu.Lock()
	if prev, ok := e.pending[id]; ok {
		prev.cancel(ErrSuperseded)
	}
	e.pending[id] = p
	e.mu.Unlock()

	return ctx, func() {
		e.mu.Lock()
		if e.pending[id] == p {
			delete(e.pending, id)
		}
		e.mu.Unlock()
		cancel(nil)
	}
}

func (e *Engine) interrupted(ctx context.Context, id string, err error) error {
	if errors.Is(context.Cause(ctx), ErrSuperseded) {
		metrics.SupersededReplies.Inc()
		log.Printf("engine: reply to %s superseded", id)
		return ErrSuperseded
	}
	return fmt.Errorf("replying to %s: %w", id, err)
}

func (e *Engine) thinkingDelay(now time.Time) time.Duration {
	r := e.cfg.DayDelay
	if e.cfg.Persona.NightMode && e.composer.IsNight(now) {
		r = e.cfg.NightDelay
	}
	return r.Pick(e.rnd.Float64())
}

// reply asks the model for an answer; ok is false when the apology was
// substituted.
func (e *Engine) reply(ctx context.Context, prompt persona.Prompt) (string, bool) {
	if e.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ModelTimeout)
		defer cancel()
	}
	start := time.Now()
	text, ok := e.guard.Reply(ctx, prompt.System, llm.FromTurns(prompt.History))
	metrics.ModelLatency.Observe(time.Since(start).Seconds())
	if !ok {
		metrics.ModelFailures.Inc()
	}
	return text, ok
}

// deliver sends reply on the chosen channel. Voice falls back to text when
// synthesis or the voice send fails; the audio file is removed either way.
func (e *Engine) deliver(ctx context.Context, id, reply string, channel persona.Channel, mode state.Mode) error {
	if channel == persona.ChannelVoice {
		err := e.sendVoice(ctx, id, reply, mode)
		if err == nil {
			metrics.RepliesSent.WithLabelValues(string(persona.ChannelVoice)).Inc()
			return nil
		}
		log.Printf("engine: voice reply to %s failed, sending text: %v", id, err)
		metrics.VoiceFallbacks.Inc()
	}
	if err := e.sendText(ctx, id, reply); err != nil {
		return err
	}
	metrics.RepliesSent.WithLabelValues(string(persona.ChannelText)).Inc()
	return nil
}

func (e *Engine) sendVoice(ctx context.Context, id, reply string, mode state.Mode) error {
	sctx, cancel := withTimeout(ctx, e.cfg.SynthTimeout)
	defer cancel()
	art, err := e.synth.Synthesize(sctx, reply, speech.Style{Locale: "fr", Slow: mode == state.ModeConfidence})
	if err != nil {
		return fmt.Errorf("synthesizing: %w", err)
	}
	defer func() {
		if err := art.Cleanup(); err != nil {
			log.Printf("engine: %v", err)
		}
	}()

	sctx, cancel = withTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()
	if err := e.sender.SendVoice(sctx, id, art); err != nil {
		return fmt.Errorf("sending voice: %w", err)
	}
	return nil
}

func (e *Engine) sendText(ctx context.Context, id, text string) error {
	sctx, cancel := withTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()
	if err := e.sender.SendText(sctx, id, text); err != nil {
		return fmt.Errorf("sending text to %s: %w", id, err)
	}
	return nil
}

// Close stops every pending initiative timer. Handlers already running are
// not interrupted.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// isCommand reports whether text is the bot command name, with or without
// a @botname suffix.
func isCommand(text, name string) bool {
	if !strings.HasPrefix(text, "/") {
		return false
	}
	cmd, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	return strings.EqualFold(cmd, name)
}

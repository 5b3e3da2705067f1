package persona

import (
	"github.com/chris/chloe/internal/state"
)

type Channel string

const (
	ChannelText  Channel = "text"
	ChannelVoice Channel = "voice"
)

// Selector decides whether a reply is written or spoken.
type Selector struct {
	cfg     Config
	tracker *Tracker
	rnd     Rand
}

func NewSelector(cfg Config, rnd Rand) *Selector {
	return &Selector{cfg: cfg, tracker: NewTracker(cfg), rnd: rnd}
}

// Probability is the chance of a voice reply. It steps up at the familiar
// and voice-prone gates, rises for positive messages and drops for negative
// ones.
func (s *Selector) Probability(level int, emotion state.Emotion) float64 {
	if !s.cfg.Voice {
		return 0
	}
	p := s.cfg.VoiceBase
	switch {
	case s.tracker.VoiceProne(level):
		p = s.cfg.VoiceProne
	case s.tracker.Familiar(level):
		p = s.cfg.VoiceFamiliar
	}
	switch emotion {
	case state.Positive:
		p += s.cfg.PositiveBoost
	case state.Negative:
		p -= s.cfg.NegativePenalty
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Choose draws the channel for a reply and counts voice replies on st.
func (s *Selector) Choose(st *state.UserState, emotion state.Emotion) Channel {
	if s.rnd.Float64() < s.Probability(st.RelationshipLevel, emotion) {
		st.Stats.VoiceMessages++
		return ChannelVoice
	}
	return ChannelText
}

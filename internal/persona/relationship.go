package persona

import (
	"time"

	"github.com/chris/chloe/internal/state"
)

// Tracker applies emotion updates to a user's relationship level.
type Tracker struct {
	cfg Config
}

func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// Update adds the gain for emotion to the relationship level (clamped to
// [0,100]), and records emotion as the dominant one and as today's entry in
// the emotion history. Gains are never negative, so the level never drops.
func (t *Tracker) Update(st *state.UserState, emotion state.Emotion, now time.Time) {
	if t.cfg.RelationshipScoring {
		gain := t.cfg.Gains[emotion]
		if gain < 0 {
			gain = 0
		}
		st.RelationshipLevel = clampLevel(st.RelationshipLevel + gain)
	}
	st.DominantEmotion = emotion
	if st.EmotionHistory == nil {
		st.EmotionHistory = map[string]state.Emotion{}
	}
	st.EmotionHistory[t.Day(now)] = emotion
}

// Day is the calendar date key used by the emotion history.
func (t *Tracker) Day(now time.Time) string {
	return now.In(t.cfg.location()).Format("2006-01-02")
}

func (t *Tracker) Familiar(level int) bool { return level >= t.cfg.FamiliarLevel }
func (t *Tracker) Attached(level int) bool { return level >= t.cfg.AttachedLevel }
func (t *Tracker) Romantic(level int) bool { return level >= t.cfg.RomanticLevel }
func (t *Tracker) VoiceProne(level int) bool {
	return level >= t.cfg.VoiceProneLevel
}

// Jealous reports whether the level allows the jealousy hint at all.
func (t *Tracker) Jealous(level int) bool {
	return t.cfg.JealousyLevel > 0 && level >= t.cfg.JealousyLevel
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > state.MaxLevel {
		return state.MaxLevel
	}
	return level
}

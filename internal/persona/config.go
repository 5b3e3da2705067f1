package persona

import (
	"sync"
	"time"

	"github.com/chris/chloe/internal/state"
)

// Rand is the randomness the persona draws on. *math/rand/v2.Rand satisfies
// it; tests pass a fixed sequence.
type Rand interface {
	Float64() float64
}

// LockedRand makes r safe to share between handlers.
func LockedRand(r Rand) Rand {
	return &lockedRand{r: r}
}

type lockedRand struct {
	mu sync.Mutex
	r  Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Recall strategies for the memory snippet in the system instruction.
const (
	RecallFacts  = "facts"
	RecallShared = "shared"
	RecallAuto   = "auto"
)

// Config holds every tunable threshold of the persona.
type Config struct {
	// Gains per emotion applied to the relationship level.
	Gains map[state.Emotion]int

	FamiliarLevel   int
	AttachedLevel   int
	RomanticLevel   int
	JealousyLevel   int // 0 disables the jealousy hint
	VoiceProneLevel int

	AbsenceGap   time.Duration
	AbsenceLevel int

	Window         int
	RecallStrategy string
	RecallFacts    int

	NightMode  bool
	NightStart int // hour, inclusive
	NightEnd   int // hour, inclusive at :00
	Location   *time.Location

	ModeDetection       bool
	RelationshipScoring bool

	// Base voice probability below FamiliarLevel, from FamiliarLevel, and
	// from VoiceProneLevel.
	Voice           bool
	VoiceBase       float64
	VoiceFamiliar   float64
	VoiceProne      float64
	PositiveBoost   float64
	NegativePenalty float64
}

func DefaultConfig() Config {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		Gains: map[state.Emotion]int{
			state.Positive: 3,
			state.Curious:  2,
			state.Neutral:  1,
			state.Negative: 0,
		},
		FamiliarLevel:   40,
		AttachedLevel:   50,
		RomanticLevel:   60,
		JealousyLevel:   65,
		VoiceProneLevel: 70,

		AbsenceGap:   6 * time.Hour,
		AbsenceLevel: 50,

		Window:         state.DefaultWindow,
		RecallStrategy: RecallAuto,
		RecallFacts:    3,

		NightMode:  true,
		NightStart: 22,
		NightEnd:   7,
		Location:   loc,

		ModeDetection:       true,
		RelationshipScoring: true,

		Voice:           true,
		VoiceBase:       0.1,
		VoiceFamiliar:   0.25,
		VoiceProne:      0.45,
		PositiveBoost:   0.15,
		NegativePenalty: 0.1,
	}
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

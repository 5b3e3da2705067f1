package engine

import (
	"time"

	"github.com/chris/chloe/internal/persona"
)

// Range is a closed interval of durations a random delay is drawn from.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pick maps a uniform draw in [0,1) onto the range.
func (r Range) Pick(f float64) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(f*float64(r.Max-r.Min))
}

type Config struct {
	Persona persona.Config

	ThinkingDelay bool
	DayDelay      Range
	NightDelay    Range

	Initiative         bool
	InitiativeLevel    int
	InitiativeCooldown time.Duration
	InitiativeDelay    Range

	ModelTimeout time.Duration // whole reply, retries included
	SendTimeout  time.Duration
	SynthTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Persona: persona.DefaultConfig(),

		ThinkingDelay: true,
		DayDelay:      Range{Min: time.Second, Max: 3 * time.Second},
		NightDelay:    Range{Min: 2 * time.Second, Max: 5 * time.Second},

		Initiative:         true,
		InitiativeLevel:    60,
		InitiativeCooldown: 8 * time.Hour,
		InitiativeDelay:    Range{Min: 10 * time.Minute, Max: 30 * time.Minute},

		ModelTimeout: 90 * time.Second,
		SendTimeout:  30 * time.Second,
		SynthTimeout: 60 * time.Second,
	}
}

package state

import (
	"time"
)

// Emotion is the coarse mood category assigned to an inbound message.
type Emotion string

const (
	Positive Emotion = "positive"
	Negative Emotion = "negative"
	Curious  Emotion = "curious"
	Neutral  Emotion = "neutral"
)

// Mode is the conversational register detected from a message.
type Mode string

const (
	ModeConfidence Mode = "confidence"
	ModeBusiness   Mode = "business"
	ModeChill      Mode = "chill"
	ModeNeutral    Mode = "neutre"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxLevel is the upper bound of RelationshipLevel.
const MaxLevel = 100

// DefaultWindow is the dialogue history bound used when none is configured.
const DefaultWindow = 12

type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at,omitzero"`
}

type Stats struct {
	Messages      int `json:"messages"`
	VoiceMessages int `json:"voice_messages"`
}

// UserState is everything the bot remembers about one user.
type UserState struct {
	Facts             []string           `json:"facts"`
	SharedMemories    []string           `json:"shared_memories"`
	EmotionHistory    map[string]Emotion `json:"emotion_history"`
	RelationshipLevel int                `json:"relationship_level"`
	DominantEmotion   Emotion            `json:"dominant_emotion,omitempty"`
	Mode              Mode               `json:"mode,omitempty"`
	DialogueHistory   []Turn             `json:"dialogue_history"`
	Stats             Stats              `json:"stats"`
	LastSeen          time.Time          `json:"last_seen,omitzero"`
	LastInitiative    time.Time          `json:"last_initiative,omitzero"`
	Version           int64              `json:"version"`
}

// New returns the record a user gets on first contact.
func New() *UserState {
	return &UserState{
		Facts:           []string{},
		SharedMemories:  []string{},
		EmotionHistory:  map[string]Emotion{},
		DialogueHistory: []Turn{},
	}
}

// Clone returns a deep copy.
func (s *UserState) Clone() *UserState {
	out := *s
	out.Facts = append([]string{}, s.Facts...)
	out.SharedMemories = append([]string{}, s.SharedMemories...)
	out.DialogueHistory = append([]Turn{}, s.DialogueHistory...)
	out.EmotionHistory = make(map[string]Emotion, len(s.EmotionHistory))
	for k, v := range s.EmotionHistory {
		out.EmotionHistory[k] = v
	}
	return &out
}

// AddFact appends fact unless the exact string is already stored.
func (s *UserState) AddFact(fact string) bool {
	if fact == "" || contains(s.Facts, fact) {
		return false
	}
	s.Facts = append(s.Facts, fact)
	return true
}

// AddSharedMemory appends memory unless the exact string is already stored.
func (s *UserState) AddSharedMemory(memory string) bool {
	if memory == "" || contains(s.SharedMemories, memory) {
		return false
	}
	s.SharedMemories = append(s.SharedMemories, memory)
	return true
}

// AppendTurn records a dialogue turn and drops the oldest turns beyond window.
func (s *UserState) AppendTurn(role, text string, at time.Time, window int) {
	s.DialogueHistory = append(s.DialogueHistory, Turn{Role: role, Text: text, At: at})
	s.DialogueHistory = LastTurns(s.DialogueHistory, window)
}

// Normalize repairs a record decoded from storage so every invariant holds.
// It reports whether anything had to be changed.
func (s *UserState) Normalize(window int) bool {
	changed := false
	if s.Facts == nil {
		s.Facts = []string{}
		changed = true
	}
	if s.SharedMemories == nil {
		s.SharedMemories = []string{}
		changed = true
	}
	if s.EmotionHistory == nil {
		s.EmotionHistory = map[string]Emotion{}
		changed = true
	}
	if s.DialogueHistory == nil {
		s.DialogueHistory = []Turn{}
		changed = true
	}
	if s.RelationshipLevel < 0 {
		s.RelationshipLevel = 0
		changed = true
	}
	if s.RelationshipLevel > MaxLevel {
		s.RelationshipLevel = MaxLevel
		changed = true
	}
	if s.Stats.Messages < 0 {
		s.Stats.Messages = 0
		changed = true
	}
	if s.Stats.VoiceMessages < 0 {
		s.Stats.VoiceMessages = 0
		changed = true
	}
	if window > 0 && len(s.DialogueHistory) > window {
		s.DialogueHistory = LastTurns(s.DialogueHistory, window)
		changed = true
	}
	s.Facts, changed = dedup(s.Facts, changed)
	s.SharedMemories, changed = dedup(s.SharedMemories, changed)
	return changed
}

// MemoryCount is the number of things the bot can recall about the user.
func (s *UserState) MemoryCount() int {
	return len(s.Facts) + len(s.SharedMemories)
}

// LastTurns returns at most n trailing turns, oldest first. The result never
// aliases the input.
func LastTurns(turns []Turn, n int) []Turn {
	if n <= 0 {
		n = DefaultWindow
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]Turn{}, turns...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedup(list []string, changed bool) ([]string, bool) {
	seen := make(map[string]bool, len(list))
	out := list[:0:0]
	for _, v := range list {
		if v == "" || seen[v] {
			changed = true
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, changed
}

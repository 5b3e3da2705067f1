package persona

import (
	"strings"

	"github.com/chris/chloe/internal/state"
)

var (
	positiveTriggers = []string{
		"merci", "génial", "genial", "super", "trop bien", "content", "heureux", "heureuse",
		"adore", "cool", "parfait", "bravo", "love",
		"❤", "😊", "😍", "🥰", "😘", "🙂",
	}
	negativeTriggers = []string{
		"triste", "fatigué", "fatiguée", "marre", "ça va pas", "ca va pas", "déprimé", "déprimée",
		"me sens seul", "c'est nul", "énervé", "énervée", "pleure", "angoisse", "stressé",
		"😢", "😭", "😞", "😔",
	}
	questionMarkers = []string{"?", "？"}
)

// Classify assigns a single emotion to text. Checks run in a fixed priority
// order (positive, negative, question) and fall through to neutral.
func Classify(text string) state.Emotion {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, positiveTriggers):
		return state.Positive
	case containsAny(t, negativeTriggers):
		return state.Negative
	case containsAny(t, questionMarkers):
		return state.Curious
	default:
		return state.Neutral
	}
}

var modeTriggers = []struct {
	mode     state.Mode
	triggers []string
}{
	{state.ModeConfidence, []string{"triste", "fatigué", "fatiguée", "marre", "ça va pas", "déprimé", "déprimée"}},
	{state.ModeBusiness, []string{"argent", "business", "projet", "objectif", "revenu"}},
	{state.ModeChill, []string{"lol", "mdr", "haha", "😂", "😄"}},
}

// DetectMode picks the conversational register of text.
func DetectMode(text string) state.Mode {
	t := strings.ToLower(text)
	for _, m := range modeTriggers {
		if containsAny(t, m.triggers) {
			return m.mode
		}
	}
	return state.ModeNeutral
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

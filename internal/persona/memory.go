package persona

import (
	"fmt"
	"strings"
	"time"

	"github.com/chris/chloe/internal/state"
)

type MemoryKind int

const (
	KindFact MemoryKind = iota
	KindSharedMemory
)

// Extraction is a memory candidate found in a message. Text is always the
// whole message, not just the phrase that triggered it.
type Extraction struct {
	Kind MemoryKind
	Text string
}

var (
	factTriggers = []string{
		"j'aime", "j’aime", "j'adore", "je travaille", "je bosse", "je m'appelle", "je m’appelle",
		"ma passion", "je veux", "mon projet", "mon objectif", "mon rêve", "j'habite", "j’habite",
	}
	sharedTriggers = []string{
		"tu te souviens", "tu te rappelles", "la dernière fois", "on avait", "ensemble", "notre ",
	}
)

// Extractor finds facts and shared memories in user messages.
type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract returns the memory candidate in text, if any. Recollection phrases
// win over self-descriptions.
func (e *Extractor) Extract(text string) (Extraction, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Extraction{}, false
	}
	t := strings.ToLower(trimmed)
	if containsAny(t, sharedTriggers) {
		return Extraction{Kind: KindSharedMemory, Text: trimmed}, true
	}
	if containsAny(t, factTriggers) {
		return Extraction{Kind: KindFact, Text: trimmed}, true
	}
	return Extraction{}, false
}

// Apply stores ex on st; exact duplicates are ignored.
func (e *Extractor) Apply(st *state.UserState, ex Extraction) bool {
	switch ex.Kind {
	case KindSharedMemory:
		return st.AddSharedMemory(ex.Text)
	default:
		return st.AddFact(ex.Text)
	}
}

// RecordAbsence appends a synthetic shared memory when the user comes back
// after more than AbsenceGap and the relationship is above AbsenceLevel. It
// must run before LastSeen is refreshed.
func (e *Extractor) RecordAbsence(st *state.UserState, now time.Time) bool {
	if st.LastSeen.IsZero() {
		return false
	}
	gap := now.Sub(st.LastSeen)
	if gap <= e.cfg.AbsenceGap || st.RelationshipLevel <= e.cfg.AbsenceLevel {
		return false
	}
	return st.AddSharedMemory(absenceMemory(now.In(e.cfg.location()), gap))
}

func absenceMemory(now time.Time, gap time.Duration) string {
	hours := int(gap.Hours())
	return fmt.Sprintf("Le %s, tu étais absent·e depuis %d heures et tu es revenu·e me parler.", now.Format("02/01/2006"), hours)
}

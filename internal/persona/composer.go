package persona

import (
	"strings"
	"time"

	"github.com/chris/chloe/internal/state"
)

const identity = "Tu es Chloé, une amie proche, humaine et naturelle. Tu parles français, avec des messages courts, comme dans une vraie conversation."

const initiativeCue = "(Ça fait un moment. Chloé a envie d'écrire la première.)"

const noGreeting = "Tu ne dis pas bonjour à chaque message."

var (
	reservedTone = "Vous apprenez encore à vous connaître : tu restes chaleureuse mais un peu réservée."
	familiarTone = "Tu es à l'aise et familière avec cette personne, tu peux être directe et taquine."
	attachedTone = "Tu t'es attachée à cette personne et tu le montres avec chaleur."
	romanticTone = "Tu ressens pour elle une affection tendre, presque romantique, que tu exprimes avec pudeur."

	modeTones = map[state.Mode]string{
		state.ModeConfidence: "Tu es douce, rassurante et protectrice.",
		state.ModeBusiness:   "Tu es motivante, structurée et ambitieuse.",
		state.ModeChill:      "Tu es drôle et détendue.",
	}
	emotionTones = map[state.Emotion]string{
		state.Positive: "La personne est de bonne humeur : partage sa joie.",
		state.Negative: "La personne ne va pas bien : écoute-la avant tout, sans lui faire la leçon.",
		state.Curious:  "La personne te pose une question : réponds-y simplement et clairement.",
	}

	nightTone      = "Il est tard : ton ton est plus calme et plus doux, et tes messages sont plus courts."
	jealousyHint   = "La personne parle de quelqu'un d'autre : tu peux laisser paraître une pointe de jalousie, légère et bienveillante, sans reproche."
	initiativeHint = "Tu écris spontanément, sans qu'on t'ait écrit : un petit message naturel pour prendre des nouvelles ou partager une pensée. Ne pose pas de question directe."

	thirdPartyTriggers = []string{
		"un ami", "une amie", "mon pote", "ma pote", "ma copine", "mon copain", "une fille", "un mec",
		"un gars", "mon collègue", "ma collègue", "rendez-vous", "un date", "mon ex", "quelqu'un",
	}
)

// Input is what the composer knows about the turn being answered.
type Input struct {
	Text       string
	Emotion    state.Emotion
	Mode       state.Mode
	Now        time.Time
	Initiative bool
}

// Prompt is handed to the language model as is.
type Prompt struct {
	System  string
	History []state.Turn
}

// Composer assembles the system instruction and bounded dialogue context
// from a user's state. It performs no I/O.
type Composer struct {
	cfg     Config
	tracker *Tracker
	rnd     Rand
}

func NewComposer(cfg Config, rnd Rand) *Composer {
	return &Composer{cfg: cfg, tracker: NewTracker(cfg), rnd: rnd}
}

func (c *Composer) Build(st *state.UserState, in Input) Prompt {
	var parts []string
	parts = append(parts, identity)
	parts = append(parts, c.toneDirectives(st.RelationshipLevel)...)

	if c.cfg.ModeDetection {
		if tone, ok := modeTones[in.Mode]; ok {
			parts = append(parts, tone)
		}
	}
	if !in.Initiative {
		if tone, ok := emotionTones[in.Emotion]; ok {
			parts = append(parts, tone)
		}
	}
	if c.cfg.NightMode && c.IsNight(in.Now) {
		parts = append(parts, nightTone)
	}
	if recall := c.recall(st); recall != "" {
		parts = append(parts, recall)
	}
	if !in.Initiative && c.tracker.Jealous(st.RelationshipLevel) && mentionsThirdParty(in.Text) {
		parts = append(parts, jealousyHint)
	}
	if in.Initiative {
		parts = append(parts, initiativeHint)
	}
	parts = append(parts, noGreeting)

	history := st.DialogueHistory
	if !in.Initiative {
		history = append(append([]state.Turn{}, history...), state.Turn{Role: state.RoleUser, Text: in.Text, At: in.Now})
	}
	turns := state.LastTurns(history, c.cfg.Window)
	if in.Initiative && (len(turns) == 0 || turns[len(turns)-1].Role != state.RoleUser) {
		turns = c.withCue(history, in.Now)
	}
	return Prompt{
		System:  strings.Join(parts, "\n"),
		History: turns,
	}
}

// withCue ends an initiative history on a user turn so the model writes a
// new message instead of continuing its last one.
func (c *Composer) withCue(history []state.Turn, now time.Time) []state.Turn {
	window := c.cfg.Window
	if window <= 0 {
		window = state.DefaultWindow
	}
	turns := []state.Turn{}
	if window > 1 {
		turns = state.LastTurns(history, window-1)
	}
	return append(turns, state.Turn{Role: state.RoleUser, Text: initiativeCue, At: now})
}

func (c *Composer) toneDirectives(level int) []string {
	if !c.tracker.Familiar(level) {
		return []string{reservedTone}
	}
	tones := []string{familiarTone}
	if c.tracker.Attached(level) {
		tones = append(tones, attachedTone)
	}
	if c.tracker.Romantic(level) {
		tones = append(tones, romanticTone)
	}
	return tones
}

// IsNight reports whether t falls in the night window, both ends inclusive:
// from NightStart:00 until NightEnd:00 in the configured timezone.
func (c *Composer) IsNight(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	local := t.In(c.cfg.location())
	h := local.Hour()
	if h >= c.cfg.NightStart || h < c.cfg.NightEnd {
		return true
	}
	return h == c.cfg.NightEnd && local.Minute() == 0 && local.Second() == 0
}

func (c *Composer) recall(st *state.UserState) string {
	strategy := c.cfg.RecallStrategy
	if strategy == RecallAuto {
		strategy = RecallFacts
		if len(st.SharedMemories) > 0 {
			strategy = RecallShared
		}
	}
	switch strategy {
	case RecallShared:
		if len(st.SharedMemories) == 0 {
			return ""
		}
		i := int(c.rnd.Float64() * float64(len(st.SharedMemories)))
		if i >= len(st.SharedMemories) {
			i = len(st.SharedMemories) - 1
		}
		return "Un souvenir que vous partagez, à évoquer si ça vient naturellement : « " + st.SharedMemories[i] + " »"
	case RecallFacts:
		if len(st.Facts) == 0 {
			return ""
		}
		k := c.cfg.RecallFacts
		if k <= 0 || k > len(st.Facts) {
			k = len(st.Facts)
		}
		var b strings.Builder
		b.WriteString("Ce que tu sais de cette personne :")
		for _, f := range st.Facts[len(st.Facts)-k:] {
			b.WriteString("\n- ")
			b.WriteString(f)
		}
		return b.String()
	}
	return ""
}

func mentionsThirdParty(text string) bool {
	return containsAny(strings.ToLower(text), thirdPartyTriggers)
}

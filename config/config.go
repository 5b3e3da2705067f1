package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chris/chloe/internal/engine"
	"github.com/chris/chloe/internal/llm"
	"github.com/chris/chloe/internal/persona"
	"github.com/joho/godotenv"
)

type Config struct {
	Transport     string // telegram, discord, console; empty picks from the tokens set
	TelegramToken string
	DiscordToken  string
	ConsoleUser   string

	LLMProvider      string // anthropic, openai, ollama
	AnthropicKey     string // API key (X-Api-Key header)
	AnthropicToken   string // OAuth token (Authorization: Bearer header)
	OpenAIKey        string
	LLMModel         string
	OllamaBaseURL    string
	LLMTimeout       time.Duration
	LLMRatePerMin    int
	MaxContextTokens int
	MaxReplyTokens   int
	SendTimeout      time.Duration

	StoreBackend string // json, sqlite
	MemoryFile   string
	DatabasePath string

	SnapshotPath        string
	SnapshotCron        string
	InitiativeSweepCron string
	StatusAddr          string // empty disables the status server

	TTSModel string
	TTSVoice string
	Timezone string

	Features Features

	InitiativeLevel    int
	InitiativeCooldown time.Duration
	AbsenceGap         time.Duration
	HistoryWindow      int
	MemoryRecall       string // facts, shared, auto
	VoicePositiveBoost float64
	VoiceNegativeDrop  float64
	FamiliarLevel      int
	VoiceProneLevel    int
}

// Features are the persona switches. All default to on.
type Features struct {
	Voice               bool
	NightMode           bool
	ThinkingDelay       bool
	Initiative          bool
	ModeDetection       bool
	RelationshipScoring bool
	Jealousy            bool
}

// ConfigDir is where the installed service keeps its settings.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chloe")
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config")
}

// Load reads .env, then ~/.chloe/config, then the environment. Values
// already set are never overridden.
func Load() *Config {
	_ = godotenv.Load()             // ignore error if no .env
	_ = godotenv.Load(ConfigFile()) // or no installed config

	return &Config{
		Transport:     strings.ToLower(os.Getenv("TRANSPORT")),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		DiscordToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		ConsoleUser:   envOr("CONSOLE_USER", "console"),

		LLMProvider:      envOr("LLM_PROVIDER", "openai"),
		AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicToken:   os.Getenv("ANTHROPIC_AUTH_TOKEN"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		LLMModel:         os.Getenv("LLM_MODEL"),
		OllamaBaseURL:    envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		LLMTimeout:       envDuration("LLM_TIMEOUT", 30*time.Second),
		LLMRatePerMin:    envInt("LLM_RATE_PER_MIN", 30),
		MaxContextTokens: envInt("MAX_CONTEXT_TOKENS", 6000),
		MaxReplyTokens:   envInt("MAX_REPLY_TOKENS", 400),
		SendTimeout:      envDuration("SEND_TIMEOUT", 30*time.Second),

		StoreBackend: strings.ToLower(envOr("STORE_BACKEND", "json")),
		MemoryFile:   envOr("MEMORY_FILE", "./memory.json"),
		DatabasePath: envOr("DATABASE_PATH", "./chloe.db"),

		SnapshotPath:        os.Getenv("SNAPSHOT_PATH"),
		SnapshotCron:        envOr("SNAPSHOT_CRON", "0 4 * * *"),
		InitiativeSweepCron: envOr("INITIATIVE_SWEEP_CRON", "@every 30m"),
		StatusAddr:          os.Getenv("STATUS_ADDR"),

		TTSModel: envOr("TTS_MODEL", "gpt-4o-mini-tts"),
		TTSVoice: envOr("TTS_VOICE", "nova"),
		Timezone: envOr("TIMEZONE", "Europe/Paris"),

		Features: Features{
			Voice:               envBool("FEATURE_VOICE", true),
			NightMode:           envBool("FEATURE_NIGHT_MODE", true),
			ThinkingDelay:       envBool("FEATURE_THINKING_DELAY", true),
			Initiative:          envBool("FEATURE_INITIATIVE", true),
			ModeDetection:       envBool("FEATURE_MODE_DETECTION", true),
			RelationshipScoring: envBool("FEATURE_RELATIONSHIP_SCORING", true),
			Jealousy:            envBool("FEATURE_JEALOUSY", true),
		},

		InitiativeLevel:    envInt("INITIATIVE_LEVEL", 60),
		InitiativeCooldown: envDuration("INITIATIVE_COOLDOWN", 8*time.Hour),
		AbsenceGap:         envDuration("ABSENCE_GAP", 6*time.Hour),
		HistoryWindow:      envInt("HISTORY_WINDOW", 12),
		MemoryRecall:       envOr("MEMORY_RECALL", persona.RecallAuto),
		VoicePositiveBoost: envFloat("VOICE_POSITIVE_BOOST", 0.15),
		VoiceNegativeDrop:  envFloat("VOICE_NEGATIVE_PENALTY", 0.1),
		FamiliarLevel:      envInt("FAMILIAR_LEVEL", 40),
		VoiceProneLevel:    envInt("VOICE_PRONE_LEVEL", 70),
	}
}

// ResolveTransport returns the transport to run: TRANSPORT when set,
// otherwise the first platform with a token, otherwise the console.
func (c *Config) ResolveTransport() (string, error) {
	switch c.Transport {
	case "telegram":
		if c.TelegramToken == "" {
			return "", fmt.Errorf("TRANSPORT=telegram requires TELEGRAM_TOKEN")
		}
		return c.Transport, nil
	case "discord":
		if c.DiscordToken == "" {
			return "", fmt.Errorf("TRANSPORT=discord requires DISCORD_BOT_TOKEN")
		}
		return c.Transport, nil
	case "console":
		return c.Transport, nil
	case "":
	default:
		return "", fmt.Errorf("unknown transport: %s", c.Transport)
	}
	switch {
	case c.TelegramToken != "":
		return "telegram", nil
	case c.DiscordToken != "":
		return "discord", nil
	default:
		return "console", nil
	}
}

// Provider returns the model client settings for the configured provider.
func (c *Config) Provider() llm.ProviderConfig {
	apiKey := c.AnthropicKey
	if c.LLMProvider == "openai" {
		apiKey = c.OpenAIKey
	}
	return llm.ProviderConfig{
		Provider:  c.LLMProvider,
		APIKey:    apiKey,
		AuthToken: c.AnthropicToken,
		Model:     c.LLMModel,
		BaseURL:   c.OllamaBaseURL,
		MaxTokens: c.MaxReplyTokens,
	}
}

func (c *Config) Guard() llm.GuardConfig {
	g := llm.DefaultGuardConfig()
	g.Timeout = c.LLMTimeout
	g.RatePerMin = c.LLMRatePerMin
	g.MaxTokens = c.MaxContextTokens
	return g
}

// Engine maps the settings onto the engine and persona defaults.
func (c *Config) Engine() (engine.Config, error) {
	ec := engine.DefaultConfig()
	p := &ec.Persona

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return ec, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	p.Location = loc
	if c.HistoryWindow > 0 {
		p.Window = c.HistoryWindow
	}
	if c.AbsenceGap > 0 {
		p.AbsenceGap = c.AbsenceGap
	}
	switch c.MemoryRecall {
	case persona.RecallFacts, persona.RecallShared, persona.RecallAuto:
		p.RecallStrategy = c.MemoryRecall
	default:
		return ec, fmt.Errorf("unknown memory recall strategy: %s", c.MemoryRecall)
	}
	if c.FamiliarLevel > 0 {
		p.FamiliarLevel = c.FamiliarLevel
	}
	if c.VoiceProneLevel > 0 {
		p.VoiceProneLevel = c.VoiceProneLevel
	}
	p.PositiveBoost = c.VoicePositiveBoost
	p.NegativePenalty = c.VoiceNegativeDrop
	p.Voice = c.Features.Voice
	p.NightMode = c.Features.NightMode
	p.ModeDetection = c.Features.ModeDetection
	p.RelationshipScoring = c.Features.RelationshipScoring
	if !c.Features.Jealousy {
		p.JealousyLevel = 0
	}

	ec.ThinkingDelay = c.Features.ThinkingDelay
	ec.Initiative = c.Features.Initiative
	if c.InitiativeLevel > 0 {
		ec.InitiativeLevel = c.InitiativeLevel
	}
	if c.InitiativeCooldown > 0 {
		ec.InitiativeCooldown = c.InitiativeCooldown
	}
	if c.SendTimeout > 0 {
		ec.SendTimeout = c.SendTimeout
	}
	// The whole reply may span both attempts.
	if c.LLMTimeout > 0 {
		ec.ModelTimeout = 3 * c.LLMTimeout
	}
	return ec, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: %s=%q is not a number, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: %s=%q is not a boolean, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: %s=%q is not a duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}

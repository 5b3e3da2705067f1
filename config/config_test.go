package config

import (
	"testing"
	"time"

	"github.com/chris/chloe/internal/persona"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("INITIATIVE_SWEEP_CRON", "")
	t.Setenv("SEND_TIMEOUT", "")
	cfg := Load()
	if cfg.LLMProvider != "openai" {
		t.Errorf("provider = %q", cfg.LLMProvider)
	}
	if cfg.StoreBackend != "json" || cfg.MemoryFile != "./memory.json" {
		t.Errorf("store = %q %q", cfg.StoreBackend, cfg.MemoryFile)
	}
	if !cfg.Features.Voice || !cfg.Features.Initiative {
		t.Errorf("features = %+v", cfg.Features)
	}
	if cfg.InitiativeLevel != 60 || cfg.InitiativeCooldown != 8*time.Hour {
		t.Errorf("initiative = %d %s", cfg.InitiativeLevel, cfg.InitiativeCooldown)
	}
	if cfg.InitiativeSweepCron != "@every 30m" {
		t.Errorf("sweep cron = %q, want @every 30m", cfg.InitiativeSweepCron)
	}
	if cfg.SendTimeout != 30*time.Second {
		t.Errorf("send timeout = %s", cfg.SendTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("FEATURE_VOICE", "false")
	t.Setenv("INITIATIVE_LEVEL", "70")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("SEND_TIMEOUT", "10s")
	t.Setenv("VOICE_POSITIVE_BOOST", "0.2")
	cfg := Load()
	if cfg.StoreBackend != "sqlite" {
		t.Errorf("backend = %q", cfg.StoreBackend)
	}
	if cfg.Features.Voice {
		t.Error("voice should be off")
	}
	if cfg.InitiativeLevel != 70 || cfg.LLMTimeout != 5*time.Second || cfg.SendTimeout != 10*time.Second || cfg.VoicePositiveBoost != 0.2 {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("INITIATIVE_LEVEL", "lots")
	t.Setenv("FEATURE_NIGHT_MODE", "maybe")
	t.Setenv("ABSENCE_GAP", "soon")
	t.Setenv("VOICE_NEGATIVE_PENALTY", "x")
	cfg := Load()
	if cfg.InitiativeLevel != 60 || !cfg.Features.NightMode || cfg.AbsenceGap != 6*time.Hour || cfg.VoiceNegativeDrop != 0.1 {
		t.Errorf("got %+v", cfg)
	}
}

func TestResolveTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"console fallback", Config{}, "console", false},
		{"telegram token", Config{TelegramToken: "t", DiscordToken: "d"}, "telegram", false},
		{"discord token", Config{DiscordToken: "d"}, "discord", false},
		{"explicit discord", Config{Transport: "discord", TelegramToken: "t", DiscordToken: "d"}, "discord", false},
		{"explicit console", Config{Transport: "console", TelegramToken: "t"}, "console", false},
		{"missing token", Config{Transport: "telegram"}, "", true},
		{"unknown", Config{Transport: "irc"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveTransport()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProvider_PicksKey(t *testing.T) {
	cfg := Config{LLMProvider: "openai", OpenAIKey: "sk-o", AnthropicKey: "sk-a"}
	if got := cfg.Provider().APIKey; got != "sk-o" {
		t.Errorf("openai key = %q", got)
	}
	cfg.LLMProvider = "anthropic"
	if got := cfg.Provider().APIKey; got != "sk-a" {
		t.Errorf("anthropic key = %q", got)
	}
}

func TestEngine_MapsFeatures(t *testing.T) {
	cfg := Config{
		Timezone:           "UTC",
		MemoryRecall:       persona.RecallShared,
		HistoryWindow:      8,
		InitiativeLevel:    75,
		LLMTimeout:         10 * time.Second,
		SendTimeout:        7 * time.Second,
		VoiceProneLevel:    90,
		VoicePositiveBoost: 0.2,
		Features:           Features{Voice: true, ThinkingDelay: false, Initiative: true, Jealousy: false},
	}
	ec, err := cfg.Engine()
	if err != nil {
		t.Fatal(err)
	}
	if ec.Persona.Location != time.UTC || ec.Persona.Window != 8 || ec.Persona.RecallStrategy != persona.RecallShared {
		t.Errorf("persona = %+v", ec.Persona)
	}
	if ec.Persona.JealousyLevel != 0 || ec.Persona.NightMode || ec.ThinkingDelay {
		t.Errorf("features not applied: %+v", ec)
	}
	if ec.Persona.VoiceProneLevel != 90 || ec.Persona.FamiliarLevel != 40 {
		t.Errorf("voice gates = %d/%d", ec.Persona.FamiliarLevel, ec.Persona.VoiceProneLevel)
	}
	if ec.SendTimeout != 7*time.Second {
		t.Errorf("send timeout = %s", ec.SendTimeout)
	}
	if ec.InitiativeLevel != 75 || ec.ModelTimeout != 30*time.Second || ec.Persona.PositiveBoost != 0.2 {
		t.Errorf("engine = %+v", ec)
	}
}

func TestEngine_Errors(t *testing.T) {
	if _, err := (&Config{Timezone: "Mars/Olympus", MemoryRecall: persona.RecallAuto}).Engine(); err == nil {
		t.Error("expected timezone error")
	}
	if _, err := (&Config{Timezone: "UTC", MemoryRecall: "everything"}).Engine(); err == nil {
		t.Error("expected recall strategy error")
	}
}

package discord

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/chris/chloe/internal/engine"
)

// Handler receives every message addressed to the bot.
type Handler interface {
	HandleMessage(ctx context.Context, in engine.Inbound) error
}

type Bot struct {
	session *discordgo.Session
	handler Handler

	mu     sync.Mutex
	routes map[string]string // user id -> channel the user last wrote from
}

func NewBot(token string) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	return &Bot{session: s, routes: make(map[string]string)}, nil
}

// Start registers h and connects to the gateway.
func (b *Bot) Start(h Handler) error {
	b.handler = h
	b.session.AddHandler(b.onMessage)
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening Discord connection: %w", err)
	}
	log.Printf("discord: connected as %s", b.session.State.User.Username)
	return nil
}

func (b *Bot) Close() {
	b.session.Close()
}

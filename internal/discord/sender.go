package discord

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
	"github.com/chris/chloe/internal/speech"
)

// channelFor returns the channel to answer userID in: the one they last
// wrote from, or a DM channel for unprompted messages.
func (b *Bot) channelFor(ctx context.Context, userID string) (string, error) {
	b.mu.Lock()
	ch, ok := b.routes[userID]
	b.mu.Unlock()
	if ok {
		return ch, nil
	}
	dm, err := b.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("opening DM with %s: %w", userID, err)
	}
	b.mu.Lock()
	b.routes[userID] = dm.ID
	b.mu.Unlock()
	return dm.ID, nil
}

func (b *Bot) SendText(ctx context.Context, userID, text string) error {
	ch, err := b.channelFor(ctx, userID)
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := b.session.ChannelMessageSend(ch, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("sending message: %w", err)
		}
	}
	return nil
}

// SendVoice posts the audio as a file attachment.
func (b *Bot) SendVoice(ctx context.Context, userID string, art *speech.Artifact) error {
	ch, err := b.channelFor(ctx, userID)
	if err != nil {
		return err
	}
	f, err := os.Open(art.Path)
	if err != nil {
		return fmt.Errorf("opening voice file: %w", err)
	}
	defer f.Close()
	if _, err := b.session.ChannelFileSend(ch, filepath.Base(art.Path), f, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending voice: %w", err)
	}
	return nil
}

func (b *Bot) Typing(ctx context.Context, userID string) error {
	ch, err := b.channelFor(ctx, userID)
	if err != nil {
		return err
	}
	return b.session.ChannelTyping(ch, discordgo.WithContext(ctx))
}

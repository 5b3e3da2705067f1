package discord

import (
	"context"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/chris/chloe/internal/engine"
)

// maxMessageLen is Discord's message size limit.
const maxMessageLen = 2000

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	in, ok := toInbound(m.Message, s.State.User.ID)
	if !ok {
		return
	}

	b.mu.Lock()
	b.routes[in.UserID] = m.ChannelID
	b.mu.Unlock()

	go func() {
		err := b.handler.HandleMessage(context.Background(), in)
		if err != nil && !errors.Is(err, engine.ErrSuperseded) {
			log.Printf("discord: handling message from %s: %v", in.UserID, err)
		}
	}()
}

// toInbound keeps DMs and messages that mention the bot, with the mention
// stripped. Attachments without text become media events.
func toInbound(m *discordgo.Message, botID string) (engine.Inbound, bool) {
	if m.Author == nil || m.Author.ID == botID || m.Author.Bot {
		return engine.Inbound{}, false
	}

	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == botID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return engine.Inbound{}, false
	}

	in := engine.Inbound{UserID: m.Author.ID, Kind: engine.KindText}
	if m.Flags&discordgo.MessageFlagsIsVoiceMessage != 0 {
		in.Kind = engine.KindVoice
		return in, true
	}

	in.Text = strings.TrimSpace(stripMention(m.Content, botID))
	if in.Text == "" {
		if len(m.Attachments) > 0 || len(m.StickerItems) > 0 {
			in.Kind = engine.KindMedia
			return in, true
		}
		return engine.Inbound{}, false
	}
	return in, true
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

// splitMessage cuts s into chunks of at most maxLen bytes, preferring
// newline boundaries and never splitting a UTF-8 sequence.
func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end := maxLen
		if end >= len(s) {
			end = len(s)
		} else {
			for end > 0 && !utf8.RuneStart(s[end]) {
				end--
			}
			if end == 0 {
				_, end = utf8.DecodeRuneInString(s)
			}
			if idx := strings.LastIndex(s[:end], "\n"); idx > 0 {
				end = idx + 1
			}
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}

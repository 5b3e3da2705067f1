package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/chris/chloe/internal/engine"
	"github.com/chris/chloe/internal/speech"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Handler receives every private message sent to the bot.
type Handler interface {
	HandleMessage(ctx context.Context, in engine.Inbound) error
}

type Bot struct {
	api     *tgbotapi.BotAPI
	timeout time.Duration
}

// NewBot connects to the Bot API. timeout bounds every HTTP request the bot
// makes, long polls included.
func NewBot(token string, timeout time.Duration) (*Bot, error) {
	return newBot(token, tgbotapi.APIEndpoint, timeout)
}

func newBot(token, endpoint string, timeout time.Duration) (*Bot, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connecting to Telegram: %w", err)
	}
	log.Printf("telegram: authorized as @%s", api.Self.UserName)
	return &Bot{api: api, timeout: timeout}, nil
}

// Run long-polls for updates and hands each message to h on its own
// goroutine until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollSeconds(b.timeout)
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := toInbound(update.Message)
			if !ok {
				continue
			}
			go func() {
				err := h.HandleMessage(ctx, in)
				if err != nil && !errors.Is(err, engine.ErrSuperseded) {
					log.Printf("telegram: handling message from %s: %v", in.UserID, err)
				}
			}()
		}
	}
}

// toInbound maps a private Telegram message to an engine event. Users are
// keyed by chat id so replies go back to the same conversation; group chats
// are ignored.
func toInbound(m *tgbotapi.Message) (engine.Inbound, bool) {
	if m == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		return engine.Inbound{}, false
	}
	in := engine.Inbound{UserID: strconv.FormatInt(m.Chat.ID, 10), Kind: engine.KindText}
	switch {
	case m.Voice != nil || m.Audio != nil || m.VideoNote != nil:
		in.Kind = engine.KindVoice
	case len(m.Photo) > 0 || m.Video != nil || m.Document != nil || m.Sticker != nil || m.Animation != nil:
		in.Kind = engine.KindMedia
	case m.Text != "":
		in.Text = m.Text
	default:
		return engine.Inbound{}, false
	}
	return in, true
}

func chatID(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", userID, err)
	}
	return id, nil
}

func (b *Bot) SendText(ctx context.Context, userID, text string) error {
	id, err := chatID(userID)
	if err != nil {
		return err
	}
	if err := call(ctx, func() error {
		_, err := b.api.Send(tgbotapi.NewMessage(id, text))
		return err
	}); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (b *Bot) SendVoice(ctx context.Context, userID string, art *speech.Artifact) error {
	id, err := chatID(userID)
	if err != nil {
		return err
	}
	if err := call(ctx, func() error {
		_, err := b.api.Send(tgbotapi.NewVoice(id, tgbotapi.FilePath(art.Path)))
		return err
	}); err != nil {
		return fmt.Errorf("sending voice: %w", err)
	}
	return nil
}

func (b *Bot) Typing(ctx context.Context, userID string) error {
	id, err := chatID(userID)
	if err != nil {
		return err
	}
	if err := call(ctx, func() error {
		_, err := b.api.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
		return err
	}); err != nil {
		return fmt.Errorf("sending chat action: %w", err)
	}
	return nil
}

// call runs an API request and returns early when ctx is done. The Bot API
// client takes no context, so the request itself is only bounded by the
// HTTP client timeout.
func call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// pollSeconds keeps the long-poll wait under the HTTP client timeout.
func pollSeconds(timeout time.Duration) int {
	return max(1, int((timeout - 5*time.Second).Seconds()))
}

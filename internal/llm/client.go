package llm

import (
	"context"

	"github.com/chris/chloe/internal/state"
)

type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

type Response struct {
	Content string
}

// Client is a chat completion backend.
type Client interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message) (*Response, error)
}

// FromTurns converts stored dialogue turns into model messages. Turns with
// an unknown role or no text are skipped.
func FromTurns(turns []state.Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		switch t.Role {
		case state.RoleUser, state.RoleAssistant:
			msgs = append(msgs, Message{Role: t.Role, Content: t.Text})
		}
	}
	return msgs
}

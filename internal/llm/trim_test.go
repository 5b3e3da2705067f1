package llm

import (
	"testing"

	"github.com/chris/chloe/internal/state"
)

func TestTrimMessages_UnderBudget(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}
	got := TrimMessages(msgs, 100000)
	if len(got) != 2 {
		t.Errorf("expected 2 messages unchanged, got %d", len(got))
	}
}

func TestTrimMessages_Empty(t *testing.T) {
	if got := TrimMessages(nil, 100); len(got) != 0 {
		t.Errorf("expected 0 messages, got %d", len(got))
	}
}

func TestTrimMessages_NoBudget(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "a long message that would not fit"}}
	if got := TrimMessages(msgs, 0); len(got) != 1 {
		t.Errorf("expected trimming disabled, got %d messages", len(got))
	}
}

func TestTrimMessages_DropsOldestFirst(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
		{Role: "assistant", Content: "second answer"},
		{Role: "user", Content: "third question"},
	}
	budget := EstimateMessagesTokens(msgs[2:])
	got := TrimMessages(msgs, budget)

	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Content != "second question" {
		t.Errorf("first kept = %q, want 'second question'", got[0].Content)
	}
	if got[len(got)-1].Content != "third question" {
		t.Errorf("last message = %q", got[len(got)-1].Content)
	}
}

func TestTrimMessages_StartsWithUser(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}
	// Room for the last two messages only, which would start with assistant.
	budget := EstimateMessagesTokens(msgs[1:])
	got := TrimMessages(msgs, budget)
	if len(got) != 1 || got[0].Content != "three" {
		t.Errorf("got %+v, want only the last user message", got)
	}
}

func TestTrimMessages_AlwaysKeepsLast(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "old"},
		{Role: "user", Content: "a very long message that blows the budget on its own"},
	}
	got := TrimMessages(msgs, 1)
	if len(got) != 1 || got[0].Content != msgs[1].Content {
		t.Errorf("got %+v, want only the last message", got)
	}
}

func TestFromTurns(t *testing.T) {
	turns := []state.Turn{
		{Role: state.RoleUser, Text: "salut"},
		{Role: "system", Text: "ignored"},
		{Role: state.RoleAssistant, Text: ""},
		{Role: state.RoleAssistant, Text: "coucou"},
	}
	got := FromTurns(turns)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0] != (Message{Role: "user", Content: "salut"}) || got[1] != (Message{Role: "assistant", Content: "coucou"}) {
		t.Errorf("got %+v", got)
	}
}

package llm

import "unicode/utf8"

// charsPerToken is the average number of characters per token. It is a
// rough figure, good enough for context budgeting.
const charsPerToken = 4

// EstimateTokens returns a rough token count for a string. It counts runes,
// so accented text is not overestimated.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken // round up
}

// EstimateMessageTokens returns the estimated token count for a single
// message, including per-message overhead.
func EstimateMessageTokens(m Message) int {
	return 4 + EstimateTokens(m.Content)
}

func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

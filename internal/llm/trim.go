package llm

// TrimMessages drops the oldest messages until the history fits within
// maxTokens. The last message is always kept, and the result never starts
// with an assistant message so that providers see a user turn first.
// A non-positive budget disables trimming.
func TrimMessages(messages []Message, maxTokens int) []Message {
	if len(messages) == 0 || maxTokens <= 0 {
		return messages
	}

	total := EstimateMessagesTokens(messages)
	start := 0
	for start < len(messages)-1 && total > maxTokens {
		total -= EstimateMessageTokens(messages[start])
		start++
	}
	for start < len(messages)-1 && messages[start].Role == "assistant" {
		start++
	}
	return messages[start:]
}

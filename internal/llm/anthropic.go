package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const anthropicAPI = "https://api.anthropic.com/v1/messages"

type AnthropicClient struct {
	apiKey    string
	authToken string
	model     string
	maxTokens int
	endpoint  string
	http      *http.Client
}

func NewAnthropicClient(apiKey, authToken, model string, maxTokens int) *AnthropicClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicClient{
		apiKey:    apiKey,
		authToken: authToken,
		model:     model,
		maxTokens: maxTokens,
		endpoint:  anthropicAPI,
		http:      &http.Client{},
	}
}

type anthRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    []anthText    `json:"system,omitempty"`
	Messages  []anthMessage `json:"messages"`
}

type anthText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthResponse struct {
	Content []anthText `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends one completion request. The messages API rejects consecutive
// turns with the same role, so those are merged before sending.
func (c *AnthropicClient) Chat(ctx context.Context, systemPrompt string, messages []Message) (*Response, error) {
	var anthMsgs []anthMessage
	for _, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if n := len(anthMsgs); n > 0 && anthMsgs[n-1].Role == m.Role {
			anthMsgs[n-1].Content += "\n" + m.Content
			continue
		}
		anthMsgs = append(anthMsgs, anthMessage{Role: m.Role, Content: m.Content})
	}
	for len(anthMsgs) > 0 && anthMsgs[0].Role != "user" {
		anthMsgs = anthMsgs[1:]
	}
	if len(anthMsgs) == 0 {
		anthMsgs = []anthMessage{{Role: "user", Content: "…"}}
	}

	reqBody := anthRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthText{{Type: "text", Text: systemPrompt}},
		Messages:  anthMsgs,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("User-Agent", "chloe/1.0")

	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		req.Header.Set("anthropic-beta", "oauth-2025-04-20")
	} else if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var anthResp anthResponse
	if err := json.Unmarshal(respBody, &anthResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	var b strings.Builder
	for _, block := range anthResp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return &Response{Content: strings.TrimSpace(b.String())}, nil
}

// StatusError is a non-200 answer from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("anthropic chat: %d %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }

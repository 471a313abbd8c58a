// Package llm wraps the OpenAI-compatible chat-completions backend that
// both conversation replies and topic suggestions are generated with.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/daikw/aituberduel/internal/retry"
)

// Message roles, mirroring the wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a conversation history.
type Message struct {
	Role    string
	Content string
}

// DefaultBaseURL points at a local Ollama's OpenAI-compatible API.
const DefaultBaseURL = "http://127.0.0.1:11434/v1"

// Client calls the generation backend with the shared retry policy and
// validates that responses actually contain text.
type Client struct {
	api      *openai.Client
	attempts int
}

// NewClient creates a client for the given base URL (empty means
// DefaultBaseURL). Local backends ignore the API key but the SDK wants
// one, so a placeholder is fine.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := openai.DefaultConfig("unused")
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &Client{
		api:      openai.NewClientWithConfig(cfg),
		attempts: retry.DefaultAttempts,
	}
}

// Chat sends the full message history and returns the assistant's text.
// Transport errors and empty responses are retried under the shared
// policy; the label shows up in retry warnings.
func (c *Client) Chat(ctx context.Context, label, model string, messages []Message, temperature float64) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toAPIMessages(messages),
		Temperature: float32(temperature),
		Stream:      false,
	}

	var content string
	err := retry.Do(ctx, label, c.attempts, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			// Missing content counts as a failed attempt, not a success
			// with an empty line.
			return fmt.Errorf("chat completion: response has no content")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func toAPIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

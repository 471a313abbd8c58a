// Package dispatch sends finalized utterances to a persona's presentation
// backend (AITuberKit), which renders them on screen and as speech.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/daikw/aituberduel/internal/retry"
)

// Client speaks through one persona's backend instance.
type Client struct {
	base     string
	clientID string

	httpClient *http.Client
	attempts   int
}

// New creates a dispatch client for the given backend base URL and client
// identifier.
func New(base, clientID string) *Client {
	return &Client{
		base:     base,
		clientID: clientID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		attempts: retry.DefaultAttempts,
	}
}

// Speak delivers one line for rendering. Only the transport-level status
// is validated; the backend has no meaningful response body. The label
// shows up in retry warnings.
func (c *Client) Speak(ctx context.Context, label, text string) error {
	return retry.Do(ctx, label, c.attempts, func() error {
		return c.send(ctx, text)
	})
}

func (c *Client) send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string][]string{"messages": {text}})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/messages/?clientId=%s&type=direct_send",
		c.base, url.QueryEscape(c.clientID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("send failed: status %d: %s", resp.StatusCode, string(excerpt))
	}
	return nil
}

// Package delivery posts approval messages to the human review
// channel over a Slack-compatible incoming webhook. The client makes
// exactly one attempt per call; retry scheduling belongs to the queue
// worker.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/config"
)

// Message is the webhook payload.
type Message struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Error is a classified delivery failure. Transient failures are worth
// retrying; permanent ones (bad channel, revoked credential) are not.
type Error struct {
	StatusCode int
	Transient  bool
	err        error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

// IsTransient reports whether the delivery failure is worth retrying.
// Unknown error shapes are treated as transient so that a genuine
// outage never fails fast.
func IsTransient(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Transient
	}
	return true
}

// Client posts messages to one configured webhook.
type Client struct {
	webhookURL string
	channel    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a delivery client. An empty webhook URL yields a
// disabled client; callers check Enabled before posting.
func NewClient(cfg config.DeliveryConfig, log *zap.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL.Value(),
		channel:    cfg.Channel,
		httpClient: &http.Client{Timeout: cfg.Timeout.Duration()},
		log:        log.Named("delivery"),
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool { return c.webhookURL != "" }

// Channel returns the configured review channel.
func (c *Client) Channel() string { return c.channel }

// PostApproval sends one approval message. The message channel
// defaults to the configured review channel.
func (c *Client) PostApproval(ctx context.Context, msg Message) error {
	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	return c.Post(ctx, payload)
}

// Post sends a raw, already-marshaled payload. The queue worker uses
// this to replay the payload stored with the queue item.
func (c *Client) Post(ctx context.Context, payload []byte) error {
	if !c.Enabled() {
		return &Error{Transient: false, err: errors.New("delivery webhook not configured")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return &Error{Transient: false, err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Transient: true, err: fmt.Errorf("webhook request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &Error{
		StatusCode: resp.StatusCode,
		Transient:  transientStatus(resp.StatusCode),
		err:        fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body)),
	}
}

// transientStatus classifies an HTTP status: request timeout, rate
// limiting and server errors are retryable, every other 4xx is a
// configuration problem that retries cannot fix.
func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

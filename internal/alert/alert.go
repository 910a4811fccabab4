// Package alert delivers fire-and-forget notifications to an external sink.
// Delivery failures are logged and swallowed; nothing in the engine depends
// on an alert arriving.
package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Notifier is the notification capability consumed by the engine and
// portfolio.
type Notifier interface {
	Notify(message string)
}

// Compile-time interface checks.
var _ Notifier = (*Client)(nil)
var _ Notifier = (*Nop)(nil)

// Client posts messages to the sink's /notify endpoint as
// {"message": "..."} JSON.
type Client struct {
	endpoint string
	httpc    *http.Client
	log      *slog.Logger
}

// NewClient creates an alert client for the given base endpoint
// (e.g. "http://alerts.internal:9000"). Requests time out after two seconds.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 2 * time.Second},
		log:      logger.With("component", "alert"),
	}
}

// Notify sends the message to the sink. Failures are logged, never returned.
func (c *Client) Notify(message string) {
	if c.endpoint == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		c.log.Warn("failed to encode alert", "error", err)
		return
	}

	resp, err := c.httpc.Post(c.endpoint+"/notify", "application/json", bytes.NewReader(payload))
	if err != nil {
		c.log.Warn("failed to send alert", "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.log.Warn("alert sink rejected notification", "status", resp.StatusCode)
	}
}

// Nop is a Notifier that discards every message.
type Nop struct{}

// Notify discards the message.
func (Nop) Notify(string) {}

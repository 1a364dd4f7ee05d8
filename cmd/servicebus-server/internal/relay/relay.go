// Package relay forwards queued messages to an HTTP webhook.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coregx/servicebus"
)

// Webhook posts message bodies to a URL. Any status outside 2xx is a handling failure,
// so the subscriber's failure policy decides whether the message is retried,
// dead-lettered or paused on.
type Webhook struct {
	url    string
	client *http.Client
	logger servicebus.Logger
}

// NewWebhook creates a Webhook posting to url with the given request timeout.
func NewWebhook(url string, timeout time.Duration, logger servicebus.Logger) *Webhook {
	if logger == nil {
		logger = &servicebus.NoopLogger{}
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Handle posts body to the webhook.
func (w *Webhook) Handle(ctx context.Context, body json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s responded with status %d", w.url, resp.StatusCode)
	}

	w.logger.Tracef("Relayed %d bytes to %s", len(body), w.url)
	return nil
}

// Config is the relay subscriber configuration.
type Config struct {
	Queue       string
	WebhookURL  string
	ErrorQueue  string
	MaxAttempts int
	Pause       time.Duration
	Timeout     time.Duration
	AutoCreate  bool
}

// NewSubscriber builds a subscriber that relays every message of cfg.Queue to the webhook.
func NewSubscriber(ctx context.Context, t servicebus.Transport, cfg Config, logger servicebus.Logger) (*servicebus.Subscriber, error) {
	webhook := NewWebhook(cfg.WebhookURL, cfg.Timeout, logger)

	opts := []servicebus.SubscriberOption{
		servicebus.WithMaxAttempts(cfg.MaxAttempts),
		servicebus.WithLogger(logger),
	}
	if cfg.ErrorQueue != "" {
		opts = append(opts, servicebus.WithErrorQueue(cfg.ErrorQueue))
	}
	if cfg.Pause > 0 {
		opts = append(opts, servicebus.WithPauseOnError(cfg.Pause))
	}
	if cfg.AutoCreate {
		opts = append(opts, servicebus.WithAutoCreateLocalQueues())
	}

	return servicebus.NewSubscriber(ctx, t, cfg.Queue, webhook.Handle, opts...)
}

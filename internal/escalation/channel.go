package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SimulatedChannel pretends to send an SMS after a fixed delay and
// always succeeds.
type SimulatedChannel struct {
	Delay  time.Duration
	Logger *zap.Logger
}

func (c SimulatedChannel) Send(ctx context.Context, phone, body string) error {
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if c.Logger != nil {
		c.Logger.Info("sms sent (simulated)", zap.String("to", phone), zap.String("body", body))
	}
	return nil
}

// webhookMessage is the payload posted to the SMS gateway.
type webhookMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// WebhookChannel posts each message to an SMS gateway. Any non-2xx
// response is a failed delivery. Retries are left to the caller.
type WebhookChannel struct {
	client *resty.Client
	url    string
}

// NewWebhookChannel creates a channel posting to url with an optional
// bearer token.
func NewWebhookChannel(url, token string, timeout time.Duration) *WebhookChannel {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookChannel{client: client, url: url}
}

func (c *WebhookChannel) Send(ctx context.Context, phone, body string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(webhookMessage{To: phone, Body: body}).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode())
	}
	return nil
}

// Package notify fans operational alerts out to a single pluggable channel.
// The pipeline never hard-depends on any specific transport.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier publishes one operational alert.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// Noop discards alerts. The default for tests and unconfigured deployments.
type Noop struct{}

func (Noop) Notify(context.Context, string, string) error { return nil }

// SlackWebhook posts alerts to a Slack incoming webhook.
type SlackWebhook struct {
	webhookURL string
	client     *http.Client
}

// NewSlackWebhook builds a Slack notifier for the given webhook URL.
func NewSlackWebhook(webhookURL string) *SlackWebhook {
	return &SlackWebhook{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *SlackWebhook) Notify(ctx context.Context, subject, message string) error {
	if n.webhookURL == "" {
		return fmt.Errorf("slack notifier misconfigured")
	}

	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s*\n%s", subject, message),
	})
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack error: %s", resp.Status)
	}
	return nil
}

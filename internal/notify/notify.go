// Package notify holds the outbound delivery implementations. The pipeline
// only formats Message; everything transport-specific lives here.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

// LogNotifier writes notifications to the process log. It is the default
// delivery target when no webhook is configured.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a notifier that logs at Info level.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, note vigil.Notification) error {
	n.log.Info("notification",
		zap.String("kind", string(note.Kind)),
		zap.String("camera", note.Camera),
		zap.String("subject", note.Subject),
		zap.String("severity", string(note.Severity)),
		zap.String("message", note.Message))
	return nil
}

// WebhookNotifier POSTs notifications as JSON to a configured endpoint. One
// attempt per notification; the caller decides what a failure means.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier. client may be nil.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

// Notify delivers one notification. A non-2xx response is an error.
func (n *WebhookNotifier) Notify(ctx context.Context, note vigil.Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// Multi fans one notification out to several notifiers. Delivery is
// best-effort per target; the first error is returned after all targets have
// been attempted.
type Multi []vigil.Notifier

// Notify delivers to every target.
func (m Multi) Notify(ctx context.Context, note vigil.Notification) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"walletwatch/internal/models"
)

// Notifier delivers one rendered notification to a platform sink
type Notifier interface {
	Send(ctx context.Context, rec models.NotificationRecord, sound bool) error
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct{}

// Send implements Notifier
func (LogNotifier) Send(_ context.Context, rec models.NotificationRecord, sound bool) error {
	slog.Info("Notification",
		"kind", rec.Kind,
		"title", rec.Title,
		"body", rec.Body,
		"sound", sound,
	)
	return nil
}

// WebhookNotifier posts notifications to an HTTP endpoint as JSON
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for the given URL
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send implements Notifier
func (w *WebhookNotifier) Send(ctx context.Context, rec models.NotificationRecord, sound bool) error {
	payload, err := json.Marshal(map[string]interface{}{
		"id":        rec.ID,
		"title":     rec.Title,
		"body":      rec.Body,
		"kind":      rec.Kind,
		"timestamp": rec.Timestamp,
		"sound":     sound,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiNotifier fans one notification out to several sinks. Every sink is
// attempted; the first error is returned.
type MultiNotifier []Notifier

// Send implements Notifier
func (m MultiNotifier) Send(ctx context.Context, rec models.NotificationRecord, sound bool) error {
	var firstErr error
	for _, n := range m {
		if err := n.Send(ctx, rec, sound); err != nil {
			slog.Warn("Notification sink failed", "kind", rec.Kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

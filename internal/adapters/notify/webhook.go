package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/clubwatch/internal/domain/model"
)

// DefaultWebhookTimeout bounds one webhook POST.
const DefaultWebhookTimeout = 10 * time.Second

// ErrWebhookStatus reports a non-2xx webhook response.
var ErrWebhookStatus = errors.New("webhook rejected event")

// webhookPayload carries a chat-compatible content line plus the raw event.
type webhookPayload struct {
	Content string      `json:"content"`
	Event   model.Event `json:"event"`
}

// WebhookSink POSTs every event as JSON to a URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a WebhookSink. A nil client gets DefaultWebhookTimeout.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	return &WebhookSink{url: url, client: client}
}

// Name implements worker.Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver implements worker.Sink.
func (s *WebhookSink) Deliver(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	body, err := json.Marshal(webhookPayload{Content: Summary(e), Event: e})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", e.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: status %d: %s", ErrWebhookStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

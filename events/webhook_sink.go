package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSink posts selected events to an HTTP endpoint. The request body is
// signed with HMAC-SHA256 when a secret is configured.
// Header: X-Skimmer-Signature: sha256=<hex>
type WebhookSink struct {
	url    string
	secret string
	client *http.Client

	// interesting limits delivery to operations worth a network round trip;
	// nil means deliver everything.
	interesting map[Operation]bool
}

// NewWebhookSink creates a sink delivering to url. ops limits which
// operations are delivered; pass none to deliver all.
func NewWebhookSink(url, secret string, ops ...Operation) *WebhookSink {
	s := &WebhookSink{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if len(ops) > 0 {
		s.interesting = make(map[Operation]bool, len(ops))
		for _, op := range ops {
			s.interesting[op] = true
		}
	}
	return s
}

type webhookPayload struct {
	Op        string             `json:"op"`
	Component string             `json:"component"`
	Instance  string             `json:"instance,omitempty"`
	URL       string             `json:"url,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Emit schedules delivery in the background with up to 3 retries.
// Retry intervals: 1s, 5s, 30s.
func (s *WebhookSink) Emit(_ context.Context, ev Event) {
	if s.interesting != nil && !s.interesting[ev.Op] {
		return
	}
	ev = ev.Stamp()

	go func() {
		delays := []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.deliver(ctx, ev)
			cancel()
			if err == nil {
				return
			}
			slog.Warn("webhook delivery failed",
				"url", s.url,
				"op", ev.Op,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries", "url", s.url, "op", ev.Op)
	}()
}

func (s *WebhookSink) deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(webhookPayload{
		Op:        string(ev.Op),
		Component: ev.Component,
		Instance:  ev.Instance,
		URL:       ev.URL,
		Reason:    ev.Reason,
		Timestamp: ev.Timestamp.Unix(),
		Metrics:   ev.Metrics,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Skimmer-Webhook/1.0")

	if s.secret != "" {
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Skimmer-Signature", "sha256="+sig)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Package hook delivers lifecycle event notifications to a configured
// webhook endpoint. Delivery is best-effort with bounded retry; a failed
// notification is logged and dropped, never surfaced to the caller's flow.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/engage/internal/logging"
)

// Event is the webhook notification payload
type Event struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Agent     string                 `json:"agent"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Notifier posts events to a webhook endpoint with bounded retry.
// A zero-endpoint notifier is a no-op, so callers never need nil checks.
type Notifier struct {
	endpoint  string
	method    string
	headers   map[string]string
	attempts  int
	baseDelay time.Duration
	client    *http.Client

	// sleep is injectable for tests
	sleep func(time.Duration)
}

// NewNotifier creates a Notifier. endpoint may be empty, which disables
// delivery entirely. attempts is the total number of tries; the delay before
// try n is n times baseDelay.
func NewNotifier(endpoint, method string, headers map[string]string, attempts int, baseDelay time.Duration) *Notifier {
	if method == "" {
		method = http.MethodPost
	}
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Notifier{
		endpoint:  endpoint,
		method:    method,
		headers:   headers,
		attempts:  attempts,
		baseDelay: baseDelay,
		client:    &http.Client{Timeout: 10 * time.Second},
		sleep:     time.Sleep,
	}
}

// WithSleeper overrides the retry sleep. For tests.
func (n *Notifier) WithSleeper(sleep func(time.Duration)) *Notifier {
	n.sleep = sleep
	return n
}

// Notify builds and sends a lifecycle event for the named agent.
// Fire-and-forget: errors are logged, never returned.
func (n *Notifier) Notify(ctx context.Context, agent, event string, data map[string]interface{}) {
	n.Send(ctx, Event{
		ID:        uuid.NewString(),
		Event:     event,
		Agent:     agent,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// Send delivers the event, retrying with linearly growing backoff. After the
// final attempt fails the event is dropped with a warning.
func (n *Notifier) Send(ctx context.Context, e Event) {
	if n.endpoint == "" {
		return
	}

	body, err := json.Marshal(e)
	if err != nil {
		logging.Warn("Webhook event not serializable, dropping", "event", e.Event, "error", err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if attempt > 1 {
			// Linear backoff: attempt 2 waits 1x base, attempt 3 waits 2x, ...
			n.sleep(time.Duration(attempt-1) * n.baseDelay)
		}
		if err := ctx.Err(); err != nil {
			logging.Warn("Webhook delivery canceled", "event", e.Event, "error", err)
			return
		}

		if lastErr = n.deliver(ctx, body); lastErr == nil {
			logging.Debug("Webhook delivered", "event", e.Event, "attempt", attempt)
			return
		}
		logging.Debug("Webhook attempt failed", "event", e.Event, "attempt", attempt, "error", lastErr)
	}

	logging.Warn("Webhook delivery failed, dropping event",
		"event", e.Event, "attempts", n.attempts, "error", lastErr)
}

func (n *Notifier) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, n.method, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

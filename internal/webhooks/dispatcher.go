package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaycore/relay/internal/backoff"
	"github.com/relaycore/relay/internal/observability"
)

// Event types emitted by the pipeline.
const (
	EventMessageProcessed = "message_processed"
	EventErrorOccurred    = "error_occurred"
)

// SignatureHeader carries the HMAC-SHA256 signature of the payload body,
// present iff the subscription has a secret.
const SignatureHeader = "X-Webhook-Signature"

const (
	deliveryTimeout = 30 * time.Second
	userAgent       = "relay-webhook/1.0"
)

// Event is a transient notification constructed per dispatch.
type Event struct {
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	TenantID  string         `json:"tenant_id"`
	SessionID string         `json:"session_id,omitempty"`
}

// payload is the JSON body posted to subscriber endpoints.
type payload struct {
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	TenantID  string         `json:"tenant_id"`
	SessionID string         `json:"session_id,omitempty"`
	WebhookID string         `json:"webhook_id"`
}

// Result summarizes one dispatch fan-out.
type Result struct {
	Sent               int    `json:"sent"`
	Failed             int    `json:"failed"`
	TotalSubscriptions int    `json:"total_subscriptions"`
	EventType          string `json:"event_type"`
}

// Dispatcher fans events out to every matching subscription. Deliveries
// run concurrently and fail independently; one endpoint's outcome never
// affects another's.
type Dispatcher struct {
	store   *Store
	client  *http.Client
	log     *observability.Logger
	metrics *observability.Metrics

	// sleep is swapped out in tests to observe retry delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(store *Store, log *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		store:   store,
		client:  &http.Client{Timeout: deliveryTimeout},
		log:     log,
		metrics: metrics,
		sleep:   backoff.Sleep,
	}
}

// Dispatch delivers the event to all enabled subscriptions whose event set
// matches, concurrently, and reports the aggregate outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) Result {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var matched []Subscription
	for _, sub := range d.store.List(ctx, event.TenantID) {
		if sub.Enabled && sub.Matches(event.EventType) {
			matched = append(matched, sub)
		}
	}
	result := Result{TotalSubscriptions: len(matched), EventType: event.EventType}
	if len(matched) == 0 {
		return result
	}

	var sent, failed atomic.Int64
	var wg sync.WaitGroup
	for _, sub := range matched {
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			start := time.Now()
			ok := d.deliver(ctx, event, sub)
			if d.metrics != nil {
				status := "sent"
				if !ok {
					status = "failed"
				}
				d.metrics.WebhookDeliveries.WithLabelValues(event.TenantID, status).Inc()
				d.metrics.WebhookDeliveryDuration.WithLabelValues(event.TenantID).Observe(time.Since(start).Seconds())
			}
			if ok {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
		}(sub)
	}
	wg.Wait()

	result.Sent = int(sent.Load())
	result.Failed = int(failed.Load())
	return result
}

// deliver posts the event to one endpoint, retrying per the subscription's
// retry config. Transport errors and non-2xx statuses are treated alike.
func (d *Dispatcher) deliver(ctx context.Context, event Event, sub Subscription) bool {
	body, err := json.Marshal(payload{
		EventType: event.EventType,
		Timestamp: event.Timestamp,
		Data:      event.Data,
		TenantID:  event.TenantID,
		SessionID: event.SessionID,
		WebhookID: sub.WebhookID,
	})
	if err != nil {
		d.log.Error(ctx, "failed to encode webhook payload", "webhook_id", sub.WebhookID, "error", err)
		return false
	}

	retry := sub.RetryConfig
	baseDelay := time.Duration(retry.RetryDelaySeconds) * time.Second

	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if d.attempt(ctx, sub, body) {
			return true
		}
		if attempt < retry.MaxRetries {
			delay := backoff.Delay(baseDelay, attempt, retry.ExponentialBackoff)
			if err := d.sleep(ctx, delay); err != nil {
				return false
			}
		}
	}

	d.log.Warn(ctx, "webhook delivery exhausted retries",
		"webhook_id", sub.WebhookID, "url", sub.URL, "attempts", retry.MaxRetries+1)
	return false
}

func (d *Dispatcher) attempt(ctx context.Context, sub Subscription, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if sub.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(sub.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Debug(ctx, "webhook attempt failed", "webhook_id", sub.WebhookID, "error", err)
		return false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return true
	}
	d.log.Debug(ctx, "webhook attempt rejected", "webhook_id", sub.WebhookID, "status", resp.StatusCode)
	return false
}

// Sign computes the hex HMAC-SHA256 of body using secret. Receivers verify
// the signature header against this over the raw request body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

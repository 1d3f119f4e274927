// Package dispatch delivers synthesized events to a downstream sink over
// HTTP with bounded exponential-backoff retry.
package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// Dispatcher posts {event, data} JSON payloads to a configured sink URL.
// A zero-value sink disables delivery (Dispatch reports success).
type Dispatcher struct {
	client     *resty.Client
	sinkURL    string
	maxRetries int
	baseDelay  time.Duration
}

// New builds a dispatcher for the given sink. maxRetries <= 0 defaults
// to 3, baseDelay <= 0 to 500ms.
func New(sinkURL string, maxRetries int, baseDelay time.Duration) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Dispatcher{
		client:     resty.New().SetTimeout(15 * time.Second),
		sinkURL:    sinkURL,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Dispatch posts the payload, retrying on transport errors and non-2xx
// responses with a doubling delay. It returns false once the retry budget
// is exhausted; callers decide whether a failed dispatch is fatal to
// their own flow.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, data any) bool {
	if d.sinkURL == "" {
		return true
	}

	body := map[string]any{
		"event": eventType,
		"data":  data,
	}

	delay := d.baseDelay
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false
			case <-timer.C:
			}
			delay *= 2
		}

		resp, err := d.client.R().
			SetContext(ctx).
			SetBody(body).
			Post(d.sinkURL)
		if err != nil {
			log.Printf("dispatch %s attempt %d failed: %v", eventType, attempt+1, err)
			continue
		}
		if resp.IsSuccess() {
			return true
		}
		log.Printf("dispatch %s attempt %d: sink returned %d", eventType, attempt+1, resp.StatusCode())
	}
	return false
}

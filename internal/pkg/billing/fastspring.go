package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload is returned when a webhook body cannot be decoded.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// FastSpringWebhook is the envelope FastSpring posts; one delivery may batch
// several events.
type FastSpringWebhook struct {
	Events []FastSpringEvent `json:"events"`
}

// FastSpringEvent is a single webhook event.
type FastSpringEvent struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Live    bool                   `json:"live"`
	Created int64                  `json:"created"`
	Data    FastSpringSubscription `json:"data"`

	raw json.RawMessage
}

// FastSpringSubscription holds the subscription fields the ledger uses.
// Checkout passes the ledger subscriber ID in tags.subscriberId; the
// FastSpring account ID is the fallback.
type FastSpringSubscription struct {
	ID      string            `json:"id"`
	Product string            `json:"product"`
	Account string            `json:"account"`
	State   string            `json:"state"`
	Tags    map[string]string `json:"tags"`
}

// SubscriberID returns the ledger subscriber the event refers to.
func (e FastSpringEvent) SubscriberID() string {
	if id := strings.TrimSpace(e.Data.Tags["subscriberId"]); id != "" {
		return id
	}
	return strings.TrimSpace(e.Data.Account)
}

// PaymentReference identifies the payment behind the event.
func (e FastSpringEvent) PaymentReference() string {
	if e.Data.ID != "" {
		return "fastspring:" + e.Data.ID + ":" + e.ID
	}
	return "fastspring:" + e.ID
}

// Raw returns the event exactly as it was received.
func (e FastSpringEvent) Raw() string {
	return string(e.raw)
}

// ParseFastSpringWebhook decodes a webhook body and keeps each event's raw JSON.
func ParseFastSpringWebhook(payload []byte) ([]FastSpringEvent, error) {
	var envelope struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if envelope.Events == nil {
		return nil, fmt.Errorf("%w: missing events", ErrMalformedPayload)
	}

	events := make([]FastSpringEvent, 0, len(envelope.Events))
	for i, raw := range envelope.Events {
		var ev FastSpringEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%w: event %d: %w", ErrMalformedPayload, i, err)
		}
		if strings.TrimSpace(ev.ID) == "" || strings.TrimSpace(ev.Type) == "" {
			return nil, fmt.Errorf("%w: event %d has no id or type", ErrMalformedPayload, i)
		}
		ev.raw = raw
		events = append(events, ev)
	}
	return events, nil
}

// Package events defines the push events shared by the order, inventory and
// payment flows and the envelope used to carry them over Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"
)

type Stream string

const (
	StreamOrders    Stream = "order-events"
	StreamInventory Stream = "inventory-events"
	StreamPayments  Stream = "payment-events"
)

// Event names as seen by stream clients.
const (
	NameConnected          = "connected"
	NameHeartbeat          = "heartbeat"
	NameOrderCreated       = "order-created"
	NameOrderStatusChanged = "order-status-changed"
	NameInventoryInit      = "inventory-init"
	NameInventoryUpdate    = "inventory-update"
	NamePaymentStatus      = "payment-status"
)

// Event is one push. An empty Key broadcasts to every subscriber of the stream.
// Terminal closes the Key's subscriptions once the event has been queued.
type Event struct {
	Stream   Stream
	Key      string
	Name     string
	Payload  any
	Terminal bool
}

// Publisher never blocks on slow subscribers and never returns delivery errors.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event)

func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

// Fanout publishes to every non-nil publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // event name
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "foodstore-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id or product id
	Stream        Stream          `json:"stream"`
	Key           string          `json:"key,omitempty"`
	Terminal      bool            `json:"terminal,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type traceKey struct{}

// WithTrace carries a request id into published envelopes.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func TraceFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

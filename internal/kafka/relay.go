package kafka

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"time"
)

// Sink is the fire-and-forget side of Producer.
type Sink interface {
	Publish(topic string, key, value []byte, headers ...kafka.Header)
}

// Relay mirrors bus events to one Kafka topic per stream and, as a consumer
// handler, feeds events read back from those topics into the local hub. With
// every replica consuming in its own group, an event published on one replica
// reaches subscribers connected to any of them.
type Relay struct {
	Sink    Sink
	Local   events.Publisher
	Service string
	Log     logrus.FieldLogger
	Now     func() time.Time
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Publish implements events.Publisher.
func (r *Relay) Publish(ctx context.Context, ev events.Event) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		r.Log.WithError(err).WithField("event", ev.Name).Error("encode event for kafka")
		return
	}
	env := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Name,
		EventVersion:  1,
		OccurredAt:    r.now().UTC(),
		Producer:      r.Service,
		TraceID:       events.TraceFrom(ctx),
		CorrelationID: ev.Key,
		Stream:        ev.Stream,
		Key:           ev.Key,
		Terminal:      ev.Terminal,
		Payload:       payload,
	}
	r.Sink.Publish(events.TopicFor(ev.Stream), events.PartitionKey(ev.Key), MustMarshal(env), envelopeHeaders(env)...)
}

// Handle is a consumer Handler. Undecodable messages are logged and skipped.
func (r *Relay) Handle(ctx context.Context, m kafka.Message) error {
	env, err := UnmarshalEnvelope(m.Value)
	if err != nil {
		r.Log.WithError(err).WithField("topic", m.Topic).Warn("skipping undecodable event")
		return nil
	}
	stream, ok := events.StreamFor(m.Topic)
	if !ok {
		stream = env.Stream
	}
	r.Local.Publish(events.WithTrace(ctx, env.TraceID), events.Event{
		Stream:   stream,
		Key:      env.Key,
		Name:     env.EventType,
		Payload:  env.Payload,
		Terminal: env.Terminal,
	})
	return nil
}

// Topics lists the stream topics a relay consumer reads.
func Topics() []string {
	return []string{events.TopicOrderEvents, events.TopicInventoryEvents, events.TopicPaymentEvents}
}

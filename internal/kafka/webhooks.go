package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/payments"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"strconv"
)

const EventWebhookReceived = "payment-webhook-received"

type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

// WebhookQueue hands webhooks to the reconciler workers through Kafka. Keys
// are the provider transaction id, so redeliveries of one transaction are
// handled in order by the same worker.
type WebhookQueue struct {
	Producer Writer
}

func (q *WebhookQueue) Enqueue(ctx context.Context, w payments.Webhook) error {
	if w.ID <= 0 {
		return fmt.Errorf("%w: missing transaction id", payments.ErrMalformedWebhook)
	}
	body, err := json.Marshal(w)
	if err != nil {
		return err
	}
	key := strconv.FormatInt(w.ID, 10)
	return q.Producer.Write(ctx, events.TopicPaymentWebhooks, []byte(key), body,
		kafka.Header{Key: HeaderEventType, Value: []byte(EventWebhookReceived)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte("1")},
	)
}

type Processor interface {
	Process(ctx context.Context, w payments.Webhook) (payments.Outcome, error)
}

// WebhookHandler runs queued webhooks through the reconciler. Infrastructure
// errors are returned so the consumer retries; bad payloads are dropped.
func WebhookHandler(p Processor, log logrus.FieldLogger) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		w, err := UnwrapPayload[payments.Webhook](m.Value)
		if err != nil {
			log.WithError(err).WithField("offset", m.Offset).Warn("dropping undecodable webhook")
			return nil
		}
		out, err := p.Process(ctx, w)
		if errors.Is(err, payments.ErrMalformedWebhook) {
			log.WithError(err).Warn("dropping malformed webhook")
			return nil
		}
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"txn_id":    w.ID,
			"order_id":  out.OrderID,
			"status":    out.Status,
			"duplicate": out.Duplicate,
		}).Debug("queued webhook processed")
		return nil
	}
}

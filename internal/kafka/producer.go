// Package kafka carries bus events and queued payment webhooks over Kafka.
package kafka

import (
	"context"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"sync"
	"time"
)

// Producer writes messages from a buffered inbox on one goroutine so callers
// never wait on the broker. Messages carry their own topic.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int, log logrus.FieldLogger) *Producer {
	if buf <= 0 {
		buf = 1024
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

// Start runs the writer loop until Close. Pending messages are flushed first.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.WithError(err).WithFields(logrus.Fields{"topic": m.Topic, "key": string(m.Key)}).Error("kafka write failed")
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.WithError(err).Warn("kafka writer close")
		}
	}()
}

// Publish queues a message. It drops and logs when the inbox is full or the
// producer is closed.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.WithField("topic", topic).Warn("producer closed, dropping message")
		return
	}
	select {
	case p.inbox <- m:
	default:
		p.log.WithField("topic", topic).Warn("producer inbox full, dropping message")
	}
}

// Write sends one message synchronously, for callers that must know the
// broker accepted it.
func (p *Producer) Write(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	return p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers})
}

// Close stops accepting messages; the loop flushes the rest and exits.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the flush after Close is done.
func (p *Producer) WaitClosed() { <-p.closeCh }

package kafka

import (
	"context"
	"errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"sync"
	"time"
)

// Handler returns nil once the message is fully handled and its offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	Workers int
	// Retries is how many extra attempts a failing message gets before it is
	// logged and committed anyway.
	Retries int
	Backoff time.Duration
	// StartLatest makes a new group skip history, for live event relays.
	StartLatest bool
}

type Consumer struct {
	r   *kafka.Reader
	cfg ConsumerConfig
	log logrus.FieldLogger
}

func NewConsumer(cfg ConsumerConfig, log logrus.FieldLogger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	start := kafka.FirstOffset
	if cfg.StartLatest {
		start = kafka.LastOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit per message after the handler succeeds
		StartOffset:    start,
	})
	return &Consumer{r: r, cfg: cfg, log: log.WithFields(logrus.Fields{"group": cfg.GroupID, "topics": cfg.Topics})}
}

// Start fetches until ctx is done. Messages of one partition key always land
// on the same worker, so their order is kept.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.cfg.Workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				c.handle(ctx, h, m)
			}
		}(jobs[i])
	}
	stop := func() {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}

	c.log.WithField("workers", c.cfg.Workers).Info("consumer started")
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case jobs[worker(m.Key, len(jobs))] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	log := c.log.WithFields(logrus.Fields{"topic": m.Topic, "partition": m.Partition, "offset": m.Offset})
	var err error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err = h(ctx, m); err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("handler failed")
		select {
		case <-time.After(c.cfg.Backoff << attempt):
		case <-ctx.Done():
			return
		}
	}
	if err != nil {
		log.WithError(err).Error("giving up on message")
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("commit failed")
	}
}

// worker picks a stable worker for a key (FNV-1a).
func worker(key []byte, n int) int {
	if n <= 1 || len(key) == 0 {
		return 0
	}
	var h uint32 = 2166136261
	for _, b := range key {
		h ^= uint32(b)
		h *= 16777619
	}
	return int(h % uint32(n))
}

// Package sse holds the in-memory subscriber registries behind the push
// streams and writes them out as text/event-stream responses.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"sync"
	"sync/atomic"
	"time"
)

// Message is one serialized event ready for the wire.
type Message struct {
	ID   string
	Name string
	Data []byte
}

// NewMessage serializes payload. []byte and json.RawMessage are used as is.
func NewMessage(name string, payload any) (Message, error) {
	data, err := encode(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return Message{ID: uuid.NewString(), Name: name, Data: data}, nil
}

func encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

// Subscriber is one live connection. Its event channel is never closed;
// Done is closed when the broker drops it.
type Subscriber struct {
	id     string
	key    string
	events chan Message
	done   chan struct{}
	once   sync.Once
	active atomic.Int64 // unix nanos of the last non-heartbeat delivery
}

func (s *Subscriber) ID() string { return s.id }
func (s *Subscriber) Key() string { return s.key }
func (s *Subscriber) Events() <-chan Message { return s.events }
func (s *Subscriber) Done() <-chan struct{} { return s.done }
func (s *Subscriber) lastActive() time.Time { return time.Unix(0, s.active.Load()) }
func (s *Subscriber) closeDone() { s.once.Do(func() { close(s.done) }) }
func (s *Subscriber) touch(now time.Time) { s.active.Store(now.UnixNano()) }

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type Options struct {
	Name string
	// Buffer is the per-subscriber queue length. A subscriber whose queue is
	// full when an event arrives is dropped.
	Buffer int
	// IdleTimeout closes subscribers that received no event other than
	// heartbeats for this long. Zero disables it.
	IdleTimeout time.Duration
	Log         logrus.FieldLogger
	Now         func() time.Time
}

// Broker is a concurrent-safe subscriber registry for one stream. Publishers
// hold the read lock while queueing, so many publishers run in parallel and
// only subscribe/unsubscribe take the write lock.
type Broker struct {
	name   string
	buffer int
	idle   time.Duration
	log    logrus.FieldLogger
	now    func() time.Time

	mu    sync.RWMutex
	byKey map[string]map[*Subscriber]struct{}
	count int
}

func NewBroker(opts Options) *Broker {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Broker{
		name:   opts.Name,
		buffer: opts.Buffer,
		idle:   opts.IdleTimeout,
		log:    opts.Log.WithField("stream", opts.Name),
		now:    opts.Now,
		byKey:  make(map[string]map[*Subscriber]struct{}),
	}
}

func (b *Broker) Name() string { return b.name }

// Subscribe registers a subscriber under key. For broadcast streams key is a
// client id; for targeted streams it is the order id.
func (b *Broker) Subscribe(key string) *Subscriber {
	now := b.now()
	s := &Subscriber{
		id:     uuid.NewString(),
		key:    key,
		events: make(chan Message, b.buffer),
		done:   make(chan struct{}),
	}
	s.touch(now)

	b.mu.Lock()
	set := b.byKey[key]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		b.byKey[key] = set
	}
	set[s] = struct{}{}
	b.count++
	total := b.count
	b.mu.Unlock()

	b.log.WithFields(logrus.Fields{"subscriber": s.id, "key": key, "total": total}).Debug("subscriber added")
	return s
}

// Unsubscribe is idempotent.
func (b *Broker) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	removed := b.removeLocked(s)
	total := b.count
	b.mu.Unlock()
	s.closeDone()
	if removed {
		b.log.WithFields(logrus.Fields{"subscriber": s.id, "key": s.key, "total": total}).Debug("subscriber removed")
	}
}

func (b *Broker) removeLocked(s *Subscriber) bool {
	set := b.byKey[s.key]
	if _, ok := set[s]; !ok {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.byKey, s.key)
	}
	b.count--
	return true
}

// Publish queues the event for every subscriber of key, or for all
// subscribers when key is empty. It returns how many subscribers got it.
func (b *Broker) Publish(key, name string, payload any) int {
	msg, err := NewMessage(name, payload)
	if err != nil {
		b.log.WithError(err).WithField("event", name).Error("drop event")
		return 0
	}
	return b.Deliver(key, msg)
}

// Deliver queues an already serialized message.
func (b *Broker) Deliver(key string, msg Message) int {
	var dead []*Subscriber
	n := 0
	now := b.now()

	b.mu.RLock()
	visit := func(set map[*Subscriber]struct{}) {
		for s := range set {
			if s.closed() {
				continue
			}
			select {
			case s.events <- msg:
				n++
				if msg.Name != events.NameHeartbeat {
					s.touch(now)
				}
			default:
				dead = append(dead, s)
			}
		}
	}
	if key == "" {
		for _, set := range b.byKey {
			visit(set)
		}
	} else {
		visit(b.byKey[key])
	}
	b.mu.RUnlock()

	for _, s := range dead {
		b.log.WithFields(logrus.Fields{"subscriber": s.id, "key": s.key, "event": msg.Name}).Warn("subscriber queue full, dropping")
		b.Unsubscribe(s)
	}
	return n
}

// Close drops every subscriber of key after their queued events. It returns
// the number closed.
func (b *Broker) Close(key string) int {
	b.mu.Lock()
	set := b.byKey[key]
	delete(b.byKey, key)
	b.count -= len(set)
	b.mu.Unlock()

	for s := range set {
		s.closeDone()
	}
	return len(set)
}

// CloseAll drops every subscriber, used on shutdown.
func (b *Broker) CloseAll() int {
	b.mu.Lock()
	old := b.byKey
	b.byKey = make(map[string]map[*Subscriber]struct{})
	b.count = 0
	b.mu.Unlock()

	n := 0
	for _, set := range old {
		for s := range set {
			s.closeDone()
			n++
		}
	}
	return n
}

func (b *Broker) HasSubscriber(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byKey[key]) > 0
}

func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Heartbeat sends a keep-alive to everyone. Heartbeats do not count as activity.
func (b *Broker) Heartbeat() int {
	return b.Publish("", events.NameHeartbeat, map[string]any{"timestamp": b.now().UTC()})
}

// Sweep closes subscribers idle longer than the configured timeout.
func (b *Broker) Sweep() int {
	if b.idle <= 0 {
		return 0
	}
	cutoff := b.now().Add(-b.idle)

	var stale []*Subscriber
	b.mu.RLock()
	for _, set := range b.byKey {
		for s := range set {
			if s.lastActive().Before(cutoff) {
				stale = append(stale, s)
			}
		}
	}
	b.mu.RUnlock()

	for _, s := range stale {
		b.log.WithFields(logrus.Fields{"subscriber": s.id, "key": s.key}).Info("closing idle subscriber")
		b.Unsubscribe(s)
	}
	return len(stale)
}

// Run sends heartbeats and sweeps idle subscribers until ctx is done.
func (b *Broker) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Heartbeat()
			b.Sweep()
		}
	}
}

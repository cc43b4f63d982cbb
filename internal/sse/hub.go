package sse

import (
	"context"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/sirupsen/logrus"
	"sync"
	"time"
)

type HubConfig struct {
	Buffer        int
	OrderIdle     time.Duration
	InventoryIdle time.Duration
	PaymentIdle   time.Duration
	Now           func() time.Time
}

// Hub owns one broker per stream and delivers events locally.
type Hub struct {
	Orders    *Broker
	Inventory *Broker
	Payments  *Broker
	log       logrus.FieldLogger
}

func NewHub(cfg HubConfig, log logrus.FieldLogger) *Hub {
	mk := func(s events.Stream, idle time.Duration) *Broker {
		return NewBroker(Options{Name: string(s), Buffer: cfg.Buffer, IdleTimeout: idle, Log: log, Now: cfg.Now})
	}
	return &Hub{
		Orders:    mk(events.StreamOrders, cfg.OrderIdle),
		Inventory: mk(events.StreamInventory, cfg.InventoryIdle),
		Payments:  mk(events.StreamPayments, cfg.PaymentIdle),
		log:       log,
	}
}

func (h *Hub) Broker(s events.Stream) *Broker {
	switch s {
	case events.StreamOrders:
		return h.Orders
	case events.StreamInventory:
		return h.Inventory
	case events.StreamPayments:
		return h.Payments
	}
	return nil
}

// Publish implements events.Publisher.
func (h *Hub) Publish(_ context.Context, ev events.Event) {
	b := h.Broker(ev.Stream)
	if b == nil {
		h.log.WithField("stream", ev.Stream).Warn("publish to unknown stream")
		return
	}
	n := b.Publish(ev.Key, ev.Name, ev.Payload)
	closed := 0
	if ev.Terminal && ev.Key != "" {
		closed = b.Close(ev.Key)
	}
	h.log.WithFields(logrus.Fields{
		"stream":    ev.Stream,
		"event":     ev.Name,
		"key":       ev.Key,
		"delivered": n,
		"closed":    closed,
	}).Debug("event published")
}

// Run drives heartbeats and idle sweeps for all brokers until ctx is done.
func (h *Hub) Run(ctx context.Context, every time.Duration) {
	var wg sync.WaitGroup
	for _, b := range h.all() {
		wg.Add(1)
		go func(b *Broker) {
			defer wg.Done()
			b.Run(ctx, every)
		}(b)
	}
	wg.Wait()
}

// Stats reports subscriber counts per stream.
func (h *Hub) Stats() map[events.Stream]int {
	return map[events.Stream]int{
		events.StreamOrders:    h.Orders.Len(),
		events.StreamInventory: h.Inventory.Len(),
		events.StreamPayments:  h.Payments.Len(),
	}
}

func (h *Hub) CloseAll() {
	for _, b := range h.all() {
		if n := b.CloseAll(); n > 0 {
			h.log.WithFields(logrus.Fields{"stream": b.Name(), "closed": n}).Info("closed subscribers")
		}
	}
}

func (h *Hub) all() []*Broker { return []*Broker{h.Orders, h.Inventory, h.Payments} }

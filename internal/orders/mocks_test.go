package orders

import (
	"context"
	"errors"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/menu"
	"github.com/ariefcatur/foodstore-orders/internal/promotion"
	"github.com/shopspring/decimal"
	"sort"
	"sync"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type fakeProducts map[int64]menu.Product

func (f fakeProducts) Get(_ context.Context, id int64) (menu.Product, error) {
	p, ok := f[id]
	if !ok {
		return menu.Product{}, menu.ErrProductNotFound
	}
	return p, nil
}

type fakeSessions map[string]Session

func (f fakeSessions) Get(_ context.Context, id string) (Session, error) {
	s, ok := f[id]
	if !ok {
		return Session{}, ErrInvalidSession
	}
	return s, nil
}

type fakePromotions struct {
	discount decimal.Decimal
	err      error
	applied  []string
	reverted []string
}

func (f *fakePromotions) Apply(_ context.Context, code string, _ decimal.Decimal, _ []promotion.Line) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	f.applied = append(f.applied, code)
	return f.discount, nil
}

func (f *fakePromotions) Revert(_ context.Context, code string) error {
	f.reverted = append(f.reverted, code)
	return nil
}

// memOrders is an in-memory Store.
type memOrders struct {
	mu         sync.Mutex
	orders     map[int64]Order
	next       int64
	createErr  error
	loseUpdate bool
}

func newMemOrders() *memOrders { return &memOrders{orders: make(map[int64]Order)} }

func (m *memOrders) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.next++
	o.ID = m.next
	o.UpdatedAt = o.OrderTime
	for i := range o.Items {
		o.Items[i].ID = int64(i + 1)
		o.Items[i].OrderID = o.ID
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *memOrders) Get(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (m *memOrders) List(_ context.Context, f Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.TableNumber != nil && o.TableNumber != *f.TableNumber {
			continue
		}
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id int64, from, to Status) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || m.loseUpdate {
		return time.Time{}, false, nil
	}
	o.Status = to
	o.UpdatedAt = o.UpdatedAt.Add(time.Minute)
	m.orders[id] = o
	return o.UpdatedAt, true, nil
}

func (m *memOrders) MarkRated(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != StatusPaid || o.IsRated {
		return false, nil
	}
	o.IsRated = true
	m.orders[id] = o
	return true, nil
}

func (m *memOrders) GetOrderStatus(_ context.Context, id int64) (StatusView, error) {
	o, err := m.Get(context.Background(), id)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{OrderID: id, Status: o.Status, UpdatedAt: o.UpdatedAt}, nil
}

// midReadOrders runs during after a status read returns from the store and
// before the caller sees it.
type midReadOrders struct {
	*memOrders
	during func()
}

func (m *midReadOrders) GetOrderStatus(ctx context.Context, id int64) (StatusView, error) {
	v, err := m.memOrders.GetOrderStatus(ctx, id)
	if m.during != nil {
		m.during()
		m.during = nil
	}
	return v, err
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memCache struct {
	mu    sync.Mutex
	data  map[int64]string
	at    map[int64]time.Time
	reads int
	fail  bool
}

func newMemCache() *memCache {
	return &memCache{data: make(map[int64]string), at: make(map[int64]time.Time)}
}

func (c *memCache) Get(_ context.Context, id int64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.fail {
		return "", false, errors.New("cache down")
	}
	v, ok := c.data[id]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, id int64, at time.Time, body []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.at[id]; ok && prev.After(at) {
		return false, nil
	}
	c.data[id] = string(body)
	c.at[id] = at
	return true, nil
}

func (c *memCache) Invalidate(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	delete(c.at, id)
	return nil
}

package httpx

import (
	"context"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/inventory"
	"github.com/ariefcatur/foodstore-orders/internal/orders"
	"github.com/ariefcatur/foodstore-orders/internal/payments"
	"sync"
	"time"
)

type fakePipeline struct {
	got orders.CreateRequest
	out *orders.Order
	err error
}

func (f *fakePipeline) CreateOrder(_ context.Context, req orders.CreateRequest) (*orders.Order, error) {
	f.got = req
	return f.out, f.err
}

type fakeOrders struct {
	byID   map[int64]orders.Order
	filter orders.Filter
}

func (f *fakeOrders) Get(_ context.Context, id int64) (orders.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) List(_ context.Context, filter orders.Filter) ([]orders.Order, error) {
	f.filter = filter
	var out []orders.Order
	for _, o := range f.byID {
		out = append(out, o)
	}
	return out, nil
}

type fakeStatus struct {
	orders *fakeOrders
}

func (f *fakeStatus) Transition(ctx context.Context, id int64, to orders.Status) (orders.Order, error) {
	o, err := f.orders.Get(ctx, id)
	if err != nil {
		return o, err
	}
	if !orders.CanTransition(o.Status, to, orders.ActorStaff) {
		return o, orders.ErrInvalidOrderState
	}
	o.Status = to
	f.orders.byID[id] = o
	return o, nil
}

func (f *fakeStatus) CurrentStatus(ctx context.Context, id int64) (orders.StatusView, error) {
	o, err := f.orders.Get(ctx, id)
	if err != nil {
		return orders.StatusView{}, err
	}
	return orders.StatusView{OrderID: o.ID, Status: o.Status, UpdatedAt: o.UpdatedAt}, nil
}

func (f *fakeStatus) MarkRated(ctx context.Context, id int64) (orders.Order, error) {
	o, err := f.orders.Get(ctx, id)
	if err != nil {
		return o, err
	}
	if o.Status != orders.StatusPaid || o.IsRated {
		return o, orders.ErrInvalidOrderState
	}
	o.IsRated = true
	f.orders.byID[id] = o
	return o, nil
}

type fakeSessions struct {
	byID map[string]orders.Session
}

func (f *fakeSessions) Open(_ context.Context, table int) (orders.Session, error) {
	s := orders.Session{ID: "6f1c1a52-8f0e-4c3e-9a57-2a4f3c1d9e10", TableNumber: table, Active: true}
	f.byID[s.ID] = s
	return s, nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (orders.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return s, orders.ErrInvalidSession
	}
	return s, nil
}

func (f *fakeSessions) Deactivate(_ context.Context, id string) error {
	s, ok := f.byID[id]
	if !ok {
		return orders.ErrInvalidSession
	}
	s.Active = false
	f.byID[id] = s
	return nil
}

type fakeLedger struct {
	records []inventory.Record
	limits  map[int64]int
	err     error
}

func (f *fakeLedger) Snapshot(context.Context, time.Time) ([]inventory.Record, error) {
	return f.records, f.err
}

func (f *fakeLedger) SoldOut(context.Context, time.Time) ([]inventory.Record, error) {
	var out []inventory.Record
	for _, r := range f.records {
		if r.NumberRemain == 0 {
			out = append(out, r)
		}
	}
	return out, f.err
}

func (f *fakeLedger) History(_ context.Context, from, to time.Time, productID int64) ([]inventory.Record, error) {
	if to.Before(from) {
		return nil, inventory.ErrInvalidRange
	}
	var out []inventory.Record
	for _, r := range f.records {
		if productID == 0 || r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) UpdateDailyLimit(_ context.Context, productID int64, date time.Time, newLimit int) (inventory.Record, error) {
	if newLimit < 0 {
		return inventory.Record{}, inventory.ErrInvalidLimit
	}
	for i, r := range f.records {
		if r.ProductID == productID {
			sold := r.SoldQuantity()
			r.DailyLimit = newLimit
			r.NumberRemain = max(0, newLimit-sold)
			r.Version++
			f.records[i] = r
			return r, nil
		}
	}
	return inventory.Record{}, inventory.ErrInventoryNotFound
}

type fakeJob struct {
	dates []time.Time
}

func (f *fakeJob) CreateForDate(_ context.Context, date time.Time) (inventory.CreateResult, error) {
	f.dates = append(f.dates, date)
	return inventory.CreateResult{Date: date.Format("2006-01-02"), Created: 2}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fakeReconciler struct {
	out  payments.Outcome
	err  error
	seen []int64
}

func (f *fakeReconciler) Process(_ context.Context, w payments.Webhook) (payments.Outcome, error) {
	f.seen = append(f.seen, w.ID)
	return f.out, f.err
}

type fakeQueue struct {
	err  error
	seen []int64
}

func (f *fakeQueue) Enqueue(_ context.Context, w payments.Webhook) error {
	if f.err != nil {
		return f.err
	}
	f.seen = append(f.seen, w.ID)
	return nil
}

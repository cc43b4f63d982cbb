package payments

import (
	"context"
	"errors"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/orders"
	"sync"
	"time"
)

type orderBook struct {
	mu     sync.Mutex
	orders map[int64]orders.Order
}

func (b *orderBook) Get(_ context.Context, id int64) (orders.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (b *orderBook) status(id int64) orders.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orders[id].Status
}

func (b *orderBook) set(id int64, s orders.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.orders[id]
	o.Status = s
	b.orders[id] = o
}

// memLedger mirrors the unique provider_txn_id key and the guarded
// SERVED -> PAID update of the Postgres repo.
type memLedger struct {
	mu        sync.Mutex
	records   []Record
	book      *orderBook
	existsErr error
	// beforeSettle runs inside Settle to simulate a concurrent staff change.
	beforeSettle func()
}

func (l *memLedger) Exists(_ context.Context, txnID int64) (bool, error) {
	if l.existsErr != nil {
		return false, l.existsErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasLocked(txnID), nil
}

func (l *memLedger) hasLocked(txnID int64) bool {
	for _, r := range l.records {
		if r.ProviderTxnID == txnID {
			return true
		}
	}
	return false
}

func (l *memLedger) Insert(_ context.Context, rec *Record) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasLocked(rec.ProviderTxnID) {
		return false, nil
	}
	rec.ID = int64(len(l.records) + 1)
	rec.CreatedAt = time.Now()
	l.records = append(l.records, *rec)
	return true, nil
}

func (l *memLedger) Settle(_ context.Context, rec *Record) (time.Time, error) {
	if l.beforeSettle != nil {
		l.beforeSettle()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasLocked(rec.ProviderTxnID) {
		return time.Time{}, ErrDuplicateWebhook
	}
	l.book.mu.Lock()
	defer l.book.mu.Unlock()
	o := l.book.orders[rec.OrderID]
	if o.Status != orders.StatusServed {
		return time.Time{}, orders.ErrInvalidOrderState
	}
	o.Status = orders.StatusPaid
	l.book.orders[rec.OrderID] = o

	rec.Status = StatusSuccess
	rec.ID = int64(len(l.records) + 1)
	l.records = append(l.records, *rec)
	return time.Date(2025, 12, 22, 9, 23, 0, 0, time.UTC), nil
}

func (l *memLedger) all() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
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

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

type announcer struct {
	mu    sync.Mutex
	calls []orders.Order
}

func (a *announcer) Announce(_ context.Context, o orders.Order, _ orders.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, o)
}

type brokenDedup struct{}

func (brokenDedup) Claim(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (brokenDedup) Done(context.Context, string) error { return nil }
func (brokenDedup) Release(context.Context, string) error { return nil }

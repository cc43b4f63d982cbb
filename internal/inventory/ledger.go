package inventory

import (
	"context"
	"fmt"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"strconv"
	"sync/atomic"
	"time"
)

const DefaultMaxRetries = 5

// Ledger owns the per-day counters. Every write is a read, check and
// version-conditioned swap, retried a bounded number of times. It publishes
// nothing; callers decide what to announce.
type Ledger struct {
	Store      Store
	MaxRetries int
	Log        logrus.FieldLogger

	snapshots singleflight.Group
	// gen moves on every committed write so a snapshot never joins a read
	// that started before that write.
	gen atomic.Uint64
}

func (l *Ledger) retries() int {
	if l.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return l.MaxRetries
}

func (l *Ledger) log() logrus.FieldLogger {
	if l.Log == nil {
		return logrus.StandardLogger()
	}
	return l.Log
}

// mutate runs the optimistic loop. next returns the new (remain, limit) for a
// freshly read record, or an error that aborts without retrying.
func (l *Ledger) mutate(ctx context.Context, productID int64, date time.Time, attempts int, next func(Record) (int, int, error)) (Record, error) {
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		cur, err := l.Store.Get(ctx, productID, date)
		if err != nil {
			return Record{}, err
		}
		remain, limit, err := next(cur)
		if err != nil {
			return Record{}, err
		}
		updated, ok, err := l.Store.CompareAndSwap(ctx, cur, remain, limit)
		if err != nil {
			return Record{}, err
		}
		if ok {
			l.gen.Add(1)
			return updated, nil
		}
		l.log().WithFields(logrus.Fields{
			"product_id": productID,
			"attempt":    i + 1,
			"version":    cur.Version,
		}).Debug("inventory version conflict, retrying")
	}
	return Record{}, fmt.Errorf("product %d on %s: %w", productID, Day(date).Format("2006-01-02"), ErrConcurrentModification)
}

// Reserve takes quantity out of the day's remaining count and returns the
// updated record.
func (l *Ledger) Reserve(ctx context.Context, productID int64, date time.Time, quantity int) (Record, error) {
	if quantity <= 0 {
		return Record{}, ErrInvalidQuantity
	}
	rec, err := l.mutate(ctx, productID, date, l.retries(), func(cur Record) (int, int, error) {
		if cur.NumberRemain < quantity {
			return 0, 0, &InsufficientError{
				ProductID:   cur.ProductID,
				ProductName: cur.ProductName,
				Remaining:   cur.NumberRemain,
				Requested:   quantity,
			}
		}
		return cur.NumberRemain - quantity, cur.DailyLimit, nil
	})
	if err != nil {
		return Record{}, err
	}
	l.log().WithFields(logrus.Fields{
		"product_id": productID,
		"quantity":   quantity,
		"remain":     rec.NumberRemain,
	}).Info("inventory reserved")
	return rec, nil
}

// Release gives quantity back, never above the daily limit. It is the
// compensation for a Reserve whose order did not go through, so it retries
// harder than Reserve.
func (l *Ledger) Release(ctx context.Context, productID int64, date time.Time, quantity int) (Record, error) {
	if quantity <= 0 {
		return Record{}, ErrInvalidQuantity
	}
	rec, err := l.mutate(ctx, productID, date, l.retries()*4, func(cur Record) (int, int, error) {
		remain := cur.NumberRemain + quantity
		if remain > cur.DailyLimit {
			remain = cur.DailyLimit
		}
		return remain, cur.DailyLimit, nil
	})
	if err != nil {
		return Record{}, err
	}
	l.log().WithFields(logrus.Fields{
		"product_id": productID,
		"quantity":   quantity,
		"remain":     rec.NumberRemain,
	}).Info("inventory released")
	return rec, nil
}

// UpdateDailyLimit sets a new limit and keeps what was already sold:
// remain = max(0, newLimit - sold).
func (l *Ledger) UpdateDailyLimit(ctx context.Context, productID int64, date time.Time, newLimit int) (Record, error) {
	if newLimit < 0 {
		return Record{}, ErrInvalidLimit
	}
	rec, err := l.mutate(ctx, productID, date, l.retries(), func(cur Record) (int, int, error) {
		remain := newLimit - cur.SoldQuantity()
		if remain < 0 {
			remain = 0
		}
		return remain, newLimit, nil
	})
	if err != nil {
		return Record{}, err
	}
	l.log().WithFields(logrus.Fields{
		"product_id": productID,
		"limit":      newLimit,
		"remain":     rec.NumberRemain,
	}).Info("daily limit updated")
	return rec, nil
}

// Invalidate stops new snapshots from joining reads already in flight. Call
// it when another process has changed the records.
func (l *Ledger) Invalidate() { l.gen.Add(1) }

// Snapshot lists the records of one day. Concurrent callers share one store
// read only if no write committed between their calls, so a caller that
// subscribed to updates before calling sees every write at least once.
func (l *Ledger) Snapshot(ctx context.Context, date time.Time) ([]Record, error) {
	key := Day(date).Format("2006-01-02") + "@" + strconv.FormatUint(l.gen.Load(), 10)
	ch := l.snapshots.DoChan(key, func() (any, error) {
		return l.Store.ListByDate(context.WithoutCancel(ctx), date)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		return nil, err
	}
	recs := v.([]Record)
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (l *Ledger) SoldOut(ctx context.Context, date time.Time) ([]Record, error) {
	recs, err := l.Snapshot(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0)
	for _, r := range recs {
		if r.NumberRemain == 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Ledger) History(ctx context.Context, from, to time.Time, productID int64) ([]Record, error) {
	if Day(to).Before(Day(from)) {
		return nil, ErrInvalidRange
	}
	return l.Store.ListRange(ctx, from, to, productID)
}

// Create adds a record for one day unless it already exists.
func (l *Ledger) Create(ctx context.Context, rec Record) (bool, error) {
	if rec.DailyLimit < 0 {
		return false, ErrInvalidLimit
	}
	rec.NumberRemain = rec.DailyLimit
	created, err := l.Store.Create(ctx, rec)
	if created {
		l.gen.Add(1)
	}
	return created, err
}

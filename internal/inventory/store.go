package inventory

import (
	"context"
	"time"
)

// Store persists daily records. CompareAndSwap is the only write path for
// counters: it succeeds only if the stored version still equals cur.Version,
// and bumps the version when it does.
type Store interface {
	Get(ctx context.Context, productID int64, date time.Time) (Record, error)
	CompareAndSwap(ctx context.Context, cur Record, remain, limit int) (Record, bool, error)
	// Create inserts rec unless the (product, date) record exists. It reports whether it inserted.
	Create(ctx context.Context, rec Record) (bool, error)
	ListByDate(ctx context.Context, date time.Time) ([]Record, error)
	// ListRange returns records with from <= date <= to; productID 0 means all products.
	ListRange(ctx context.Context, from, to time.Time, productID int64) ([]Record, error)
}

package inventory

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memKey struct {
	productID int64
	date      string
}

// MemoryStore keeps records in process. It is used by tests and local runs
// without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memKey]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memKey]Record), now: time.Now}
}

func keyOf(productID int64, date time.Time) memKey {
	return memKey{productID: productID, date: Day(date).Format("2006-01-02")}
}

func (s *MemoryStore) Get(_ context.Context, productID int64, date time.Time) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[keyOf(productID, date)]
	if !ok {
		return Record{}, ErrInventoryNotFound
	}
	return r, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, cur Record, remain, limit int) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(cur.ProductID, cur.Date)
	r, ok := s.records[k]
	if !ok {
		return Record{}, false, ErrInventoryNotFound
	}
	if r.Version != cur.Version {
		return r, false, nil
	}
	r.NumberRemain = remain
	r.DailyLimit = limit
	r.Version++
	s.records[k] = r
	return r, true, nil
}

func (s *MemoryStore) Create(_ context.Context, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(rec.ProductID, rec.Date)
	if _, ok := s.records[k]; ok {
		return false, nil
	}
	rec.Date = Day(rec.Date)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.records[k] = rec
	return true, nil
}

func (s *MemoryStore) ListByDate(ctx context.Context, date time.Time) ([]Record, error) {
	return s.ListRange(ctx, date, date, 0)
}

func (s *MemoryStore) ListRange(_ context.Context, from, to time.Time, productID int64) ([]Record, error) {
	from, to = Day(from), Day(to)
	s.mu.RLock()
	out := make([]Record, 0)
	for _, r := range s.records {
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		if productID != 0 && r.ProductID != productID {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

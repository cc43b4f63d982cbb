package inventory

import (
	"context"
	"errors"
	"github.com/ariefcatur/foodstore-orders/internal/logx"
	"github.com/ariefcatur/foodstore-orders/internal/postgres/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPostgresStore_ReserveUnderContention(t *testing.T) {
	pool := pgtest.Start(t)
	store := &PostgresStore{DB: pool}
	l := &Ledger{Store: store, MaxRetries: 10, Log: logx.Discard()}
	ctx := context.Background()

	pid := pgtest.SeedProduct(t, pool, "Com tam", 45000, 25000, 100)
	created, err := l.Create(ctx, Record{
		ProductID:   pid,
		Date:        today,
		PriceAtDate: decimal.NewFromInt(45000),
		CostAtDate:  decimal.NewFromInt(25000),
		DailyLimit:  100,
	})
	require.NoError(t, err)
	require.True(t, created)

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := l.Reserve(ctx, pid, today, 1); err == nil {
					accepted.Add(1)
				} else if !errors.Is(err, ErrInsufficientInventory) && !errors.Is(err, ErrConcurrentModification) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, pid, today)
	require.NoError(t, err)
	assert.Equal(t, "Com tam", got.ProductName)
	assert.Equal(t, 100-int(accepted.Load()), got.NumberRemain)
	assert.GreaterOrEqual(t, got.NumberRemain, 0)
	assert.Equal(t, "45000", got.PriceAtDate.String())
}

func TestPostgresStore_CompareAndSwapRejectsStaleVersion(t *testing.T) {
	pool := pgtest.Start(t)
	store := &PostgresStore{DB: pool}
	ctx := context.Background()

	pid := pgtest.SeedProduct(t, pool, "Pho", 50000, 30000, 10)
	_, err := store.Create(ctx, Record{ProductID: pid, Date: today, PriceAtDate: decimal.NewFromInt(50000), CostAtDate: decimal.NewFromInt(30000), DailyLimit: 10, NumberRemain: 10})
	require.NoError(t, err)

	cur, err := store.Get(ctx, pid, today)
	require.NoError(t, err)

	next, ok, err := store.CompareAndSwap(ctx, cur, 9, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cur.Version+1, next.Version)

	_, ok, err = store.CompareAndSwap(ctx, cur, 8, 10)
	require.NoError(t, err)
	assert.False(t, ok, "stale version must not write")

	list, err := store.ListRange(ctx, today, today, pid)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 9, list[0].NumberRemain)

	_, err = store.Get(ctx, pid, today.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrInventoryNotFound)
}

package menu

import (
	"context"
	"github.com/ariefcatur/foodstore-orders/internal/postgres/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestRepo_GetAndListActive(t *testing.T) {
	pool := pgtest.Start(t)
	repo := &Repo{DB: pool}
	ctx := context.Background()

	id := pgtest.SeedProduct(t, pool, "Pho bo", 50000, 30000, 40)
	var hidden int64
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO products(name, price, is_active) VALUES ('Old dish', 10000, FALSE) RETURNING id`).Scan(&hidden))

	p, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pho bo", p.Name)
	assert.Equal(t, "50000", p.Price.String())
	assert.True(t, p.Cost.Valid)
	require.NotNil(t, p.DefaultDailyLimit)
	assert.Equal(t, 40, *p.DefaultDailyLimit)
	assert.True(t, p.Active)

	old, err := repo.Get(ctx, hidden)
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.False(t, old.Cost.Valid)
	assert.Nil(t, old.DefaultDailyLimit)

	_, err = repo.Get(ctx, 999999)
	assert.ErrorIs(t, err, ErrProductNotFound)

	list, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

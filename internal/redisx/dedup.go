package redisx

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
)

// Dedup guards at-least-once deliveries keyed by an external id. Redis is only
// a fast path; the database unique key stays the source of truth.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

func (d *Dedup) key(id string) string { return fmt.Sprintf(KeyDedup, d.Service, id) }

// Claim marks id as in flight. False means another delivery holds or finished it.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return Claim(ctx, d.RDB, d.key(id), TTLClaim)
}

// Done keeps the marker for TTLDedup so late redeliveries stop at Redis.
func (d *Dedup) Done(ctx context.Context, id string) error {
	return d.RDB.Set(ctx, d.key(id), "done", TTLDedup).Err()
}

func (d *Dedup) Release(ctx context.Context, id string) error {
	return Release(ctx, d.RDB, d.key(id))
}

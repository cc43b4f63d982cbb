package redisx

import (
	"context"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

// StatusCache keeps the latest serialized order status for cheap polling.
// Each entry is a hash of the body and the change time in unix microseconds.
type StatusCache struct {
	RDB *redis.Client
}

// setIfNewer writes only when the cached change time is not newer, so a slow
// read-through fill never replaces a status written after it read.
var setIfNewer = redis.NewScript(`
local at = redis.call('HGET', KEYS[1], 'at')
if at and tonumber(at) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'body', ARGV[1], 'at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (c *StatusCache) Get(ctx context.Context, orderID int64) (string, bool, error) {
	s, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyOrderStatus, orderID), "body").Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// Set stores body for a status that changed at at. It reports false when a
// newer status is already cached.
func (c *StatusCache) Set(ctx context.Context, orderID int64, at time.Time, body []byte) (bool, error) {
	n, err := setIfNewer.Run(ctx, c.RDB, []string{fmt.Sprintf(KeyOrderStatus, orderID)},
		string(body), at.UnixMicro(), TTLStatusCache.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID int64) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

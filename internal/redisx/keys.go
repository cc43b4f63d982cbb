package redisx

import "time"

const (
	// Cache status order: order_status:{order_id} -> {"orderId":..,"status":"..","updatedAt":".."}
	KeyOrderStatus = "order_status:%d"

	// Dedup webhook processing: dedup:{service}:{id} (id = provider transaction id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	// TTLClaim bounds how long an in-flight webhook blocks redeliveries if the worker dies.
	TTLClaim = 2 * time.Minute
)

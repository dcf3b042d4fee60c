package redisx

import "time"

const (
	// Cached order status snapshot: order_status:{order_id} -> orders.StatusSnapshot JSON
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

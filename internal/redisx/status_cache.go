package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/redis/go-redis/v9"
)

type StatusCache struct{ rdb *redis.Client }

func NewStatusCache(rdb *redis.Client) *StatusCache { return &StatusCache{rdb: rdb} }

func encodeSnapshot(s orders.StatusSnapshot) ([]byte, error) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	return json.Marshal(s)
}

// SetStatus overwrites the cached snapshot. Settlement uses it.
func (c *StatusCache) SetStatus(ctx context.Context, s orders.StatusSnapshot) error {
	b, err := encodeSnapshot(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, s.OrderID), b, TTLStatusCache).Err()
}

// FillStatus caches s only if no snapshot is cached yet (SET NX).
func (c *StatusCache) FillStatus(ctx context.Context, s orders.StatusSnapshot) error {
	b, err := encodeSnapshot(s)
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, fmt.Sprintf(KeyOrderStatus, s.OrderID), b, TTLStatusCache).Err()
}

// GetStatus reports ok=false on a cache miss.
func (c *StatusCache) GetStatus(ctx context.Context, orderID string) (orders.StatusSnapshot, bool, error) {
	var snap orders.StatusSnapshot
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false, err
	}
	return snap, true, nil
}

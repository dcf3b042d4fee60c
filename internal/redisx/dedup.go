package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers processed event ids for TTLDedup. It is a fast path only;
// the database guards stay authoritative.
type Deduper struct {
	rdb     *redis.Client
	service string
}

func NewDeduper(rdb *redis.Client, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service}
}

func (d *Deduper) key(eventID string) string { return fmt.Sprintf(KeyDedup, d.service, eventID) }

func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.rdb, d.key(eventID))
}

func (d *Deduper) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, d.key(eventID), "1", TTLDedup).Err()
}

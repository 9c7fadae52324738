package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// RateSnapshotKey is the Redis key holding the serialized rate table
const RateSnapshotKey = "rates:snapshot"

// RateSnapshotCache stores the whole RateConfig table as one JSON value, so
// every read observes a single consistent snapshot.
type RateSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRateSnapshotCache creates the cache. A zero ttl keeps entries until
// the next invalidation.
func NewRateSnapshotCache(client *redis.Client, ttl time.Duration) *RateSnapshotCache {
	return &RateSnapshotCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot; ok is false on a miss
func (c *RateSnapshotCache) Get(ctx context.Context) ([]entity.RateConfig, bool, error) {
	raw, err := c.client.Get(ctx, RateSnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get rates: %w", err)
	}

	var snapshot []entity.RateConfig
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, false, fmt.Errorf("cache: decode rates: %w", err)
	}
	return snapshot, true, nil
}

// Set replaces the cached snapshot
func (c *RateSnapshotCache) Set(ctx context.Context, snapshot []entity.RateConfig) error {
	if snapshot == nil {
		snapshot = []entity.RateConfig{}
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("cache: encode rates: %w", err)
	}
	if err := c.client.Set(ctx, RateSnapshotKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set rates: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot
func (c *RateSnapshotCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, RateSnapshotKey).Err(); err != nil {
		return fmt.Errorf("cache: invalidate rates: %w", err)
	}
	return nil
}

var _ port.RateSnapshotCache = (*RateSnapshotCache)(nil)

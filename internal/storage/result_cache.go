package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache keeps terminal result payloads for a bounded time so the manual
// check path can serve a recently finished lookup without a provider call.
// It is an ephemeral convenience, not a source of truth: a miss always falls
// back to the provider.
type ResultCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewResultCache creates a result cache with the given TTL.
func NewResultCache(cache *RedisCache, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{cache: cache, ttl: ttl}
}

func resultKey(searchID string) string {
	return "lookup:result:" + searchID
}

// Put stores a terminal payload for a job.
func (c *ResultCache) Put(ctx context.Context, searchID string, payload json.RawMessage) error {
	if err := c.cache.Client().Set(ctx, resultKey(searchID), []byte(payload), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result for %s: %w", searchID, err)
	}
	return nil
}

// Get returns the cached payload for a job, or (nil, nil) on a miss.
func (c *ResultCache) Get(ctx context.Context, searchID string) (json.RawMessage, error) {
	data, err := c.cache.Client().Get(ctx, resultKey(searchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached result for %s: %w", searchID, err)
	}
	return json.RawMessage(data), nil
}

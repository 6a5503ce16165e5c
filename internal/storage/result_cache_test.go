package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResultCache(t *testing.T, ttl time.Duration) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewResultCache(NewRedisCacheFromClient(client), ttl), mr
}

func TestResultCachePutGet(t *testing.T) {
	cache, _ := testResultCache(t, time.Hour)
	ctx := context.Background()

	payload := json.RawMessage(`{"status": "COMPLETE", "hits": 3}`)
	require.NoError(t, cache.Put(ctx, "100", payload))

	got, err := cache.Get(ctx, "100")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))
}

func TestResultCacheMissReturnsNil(t *testing.T) {
	cache, _ := testResultCache(t, time.Hour)

	got, err := cache.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResultCacheEntriesExpire(t *testing.T) {
	cache, mr := testResultCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "100", json.RawMessage(`{}`)))
	assert.True(t, mr.Exists("lookup:result:100"))

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "100")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResultCacheDefaultTTL(t *testing.T) {
	cache, mr := testResultCache(t, 0)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "100", json.RawMessage(`{}`)))
	assert.Equal(t, 24*time.Hour, mr.TTL("lookup:result:100"))
}

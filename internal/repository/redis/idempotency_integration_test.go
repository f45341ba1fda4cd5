//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: REDIS_URL=redis://localhost:6379/0 go test -tags integration ./internal/repository/redis/

func TestIdempotencyStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s, skipping integration test", url)
	}

	store := NewRedisIdempotencyStore(client)
	id := uuid.New()

	ok, err := store.AcquireLock(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireLock(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "second delivery must see the lock")

	require.NoError(t, store.ReleaseLock(ctx, id))

	ttl, err := client.TTL(ctx, "execrelay:record-lock:"+id.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 10*time.Minute, "released lock keeps a long TTL")

	failed := uuid.New()
	ok, err = store.AcquireLock(ctx, failed)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.AbandonLock(ctx, failed))

	ok, err = store.AcquireLock(ctx, failed)
	require.NoError(t, err)
	assert.True(t, ok, "abandoned lock can be reacquired")
}

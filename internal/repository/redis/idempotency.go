package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/execrelay/internal/repository"
)

var _ repository.IdempotencyStore = (*redisIdempotency)(nil)

const (
	lockKeyPrefix = "execrelay:record-lock:"
	lockTTL       = 10 * time.Minute
	doneTTL       = 24 * time.Hour
)

type redisIdempotency struct {
	client goredis.UniversalClient
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store using SETNX.
func NewRedisIdempotencyStore(client goredis.UniversalClient) repository.IdempotencyStore {
	return &redisIdempotency{client: client}
}

// AcquireLock uses Redis SETNX to atomically acquire a processing lock.
func (r *redisIdempotency) AcquireLock(ctx context.Context, recordID uuid.UUID) (bool, error) {
	key := lockKeyPrefix + recordID.String()
	ok, err := r.client.SetNX(ctx, key, time.Now().Unix(), lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire lock: %w", err)
	}
	return ok, nil
}

// AbandonLock removes the lock after a failed insert.
func (r *redisIdempotency) AbandonLock(ctx context.Context, recordID uuid.UUID) error {
	if err := r.client.Del(ctx, lockKeyPrefix+recordID.String()).Err(); err != nil {
		return fmt.Errorf("redis: abandon lock: %w", err)
	}
	return nil
}

// ReleaseLock keeps the key around long enough to absorb broker redeliveries.
func (r *redisIdempotency) ReleaseLock(ctx context.Context, recordID uuid.UUID) error {
	key := lockKeyPrefix + recordID.String()
	if err := r.client.Expire(ctx, key, doneTTL).Err(); err != nil {
		return fmt.Errorf("redis: release lock: %w", err)
	}
	return nil
}

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

var _ Store = (*RedisStore)(nil)

const keyPrefix = "execrelay:rl:"

// takeScript increments the window counter only while it is below the limit,
// and sets the key to expire when the window ends.
var takeScript = goredis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
  return {count, 0}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIREAT', KEYS[1], ARGV[2])
end
return {count, 1}
`)

// RedisStore shares windows across relay instances.
type RedisStore struct {
	client goredis.Scripter
}

// NewRedisStore creates a Redis-backed window store.
func NewRedisStore(client goredis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Take(ctx context.Context, key string, limit domain.RateLimit, now time.Time) (Window, bool, error) {
	start := windowStart(now, limit.Window)
	redisKey := keyPrefix + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
	expireAt := start.Add(limit.Window).UnixMilli()

	res, err := takeScript.Run(ctx, s.client, []string{redisKey}, limit.MaxCalls, expireAt).Int64Slice()
	if err != nil {
		return Window{}, false, fmt.Errorf("redis: rate limit take: %w", err)
	}
	if len(res) != 2 {
		return Window{}, false, fmt.Errorf("redis: rate limit take: unexpected reply %v", res)
	}

	return Window{Key: key, WindowStart: start, Count: int(res[0])}, res[1] == 1, nil
}

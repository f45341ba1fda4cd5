package health

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

var _ Store = (*RedisStore)(nil)

const (
	healthKeyPrefix = "execrelay:health:"

	// stateTTL bounds how long an idle provider's failure streak is remembered.
	stateTTL = 24 * time.Hour
)

// failureScript mirrors Policy.Cooldown: base * 2^(failures-threshold), capped.
var failureScript = goredis.NewScript(`
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
local untilMs = tonumber(redis.call('HGET', KEYS[1], 'until') or '0')
local threshold = tonumber(ARGV[1])
if failures >= threshold then
  local cooldown = tonumber(ARGV[2]) * (2 ^ (failures - threshold))
  cooldown = math.min(cooldown, tonumber(ARGV[3]))
  local candidate = tonumber(ARGV[4]) + cooldown
  if candidate > untilMs then
    untilMs = candidate
    redis.call('HSET', KEYS[1], 'until', string.format('%d', untilMs))
  end
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {failures, untilMs}
`)

// RedisStore shares health state across relay instances.
type RedisStore struct {
	client goredis.UniversalClient
}

// NewRedisStore creates a Redis-backed health store.
func NewRedisStore(client goredis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, providerID string) (domain.ProviderHealthState, error) {
	st := domain.ProviderHealthState{ProviderID: providerID}

	vals, err := s.client.HMGet(ctx, healthKeyPrefix+providerID, "failures", "until").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return st, fmt.Errorf("redis: load health: %w", err)
	}
	if len(vals) == 2 {
		st.ConsecutiveFailures = parseInt(vals[0])
		if ms := parseInt(vals[1]); ms > 0 {
			st.UnhealthyUntil = time.UnixMilli(int64(ms))
		}
	}
	return st, nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, providerID string, policy Policy, now time.Time) (domain.ProviderHealthState, error) {
	res, err := failureScript.Run(ctx, s.client, []string{healthKeyPrefix + providerID},
		policy.FailureThreshold,
		policy.BaseCooldown.Milliseconds(),
		policy.MaxCooldown.Milliseconds(),
		now.UnixMilli(),
		stateTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.ProviderHealthState{ProviderID: providerID}, fmt.Errorf("redis: record failure: %w", err)
	}

	st := domain.ProviderHealthState{ProviderID: providerID}
	if len(res) == 2 {
		st.ConsecutiveFailures = int(res[0])
		if res[1] > 0 {
			st.UnhealthyUntil = time.UnixMilli(res[1])
		}
	}
	return st, nil
}

func (s *RedisStore) RecordSuccess(ctx context.Context, providerID string) (domain.ProviderHealthState, error) {
	if err := s.client.Del(ctx, healthKeyPrefix+providerID).Err(); err != nil {
		return domain.ProviderHealthState{ProviderID: providerID}, fmt.Errorf("redis: record success: %w", err)
	}
	return domain.ProviderHealthState{ProviderID: providerID, IsHealthy: true}, nil
}

func parseInt(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

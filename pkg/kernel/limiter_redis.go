package kernel

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript implements the same fixed-window-with-burst algorithm
// as InMemoryLimiterStore, atomically, so a multi-process deployment shares
// one view of each key's counter.
// KEYS[1] = counter key
// ARGV[1] = max_requests
// ARGV[2] = window_seconds
// ARGV[3] = burst
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local max_requests = tonumber(ARGV[1])
local window_seconds = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])

if max_requests <= 0 then
    return 0
end

local count = redis.call("INCR", key)
if count == 1 then
    redis.call("EXPIRE", key, window_seconds)
end

if count <= max_requests + burst then
    return 1
end
return 0
`)

// RedisLimiterStore implements LimiterStore using Redis, for gateway
// deployments that run more than one process against shared state.
type RedisLimiterStore struct {
	client *redis.Client
}

func NewRedisLimiterStore(addr, password string, db int) *RedisLimiterStore {
	return &RedisLimiterStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *RedisLimiterStore) Allow(ctx context.Context, key string, policy Policy) (bool, error) {
	res, err := slidingWindowScript.Run(ctx, s.client, []string{"ratelimit:" + key},
		policy.MaxRequests, policy.WindowSeconds, policy.Burst).Result()
	if err != nil {
		return false, fmt.Errorf("kernel: redis limiter: %w", err)
	}

	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("kernel: unexpected lua response %T", res)
	}
	return allowed == 1, nil
}

func (s *RedisLimiterStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, "ratelimit:"+key).Err(); err != nil {
		return fmt.Errorf("kernel: redis reset: %w", err)
	}
	return nil
}

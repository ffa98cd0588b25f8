package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const inflightMarker = "inflight"

// releaseScript deletes a fingerprint only while it is still in flight, so a
// late Release cannot wipe an outcome another caller already settled.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache is the production Cache backed by Redis.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) TryBegin(ctx context.Context, fingerprint string, leaseTTL time.Duration) (BeginResult, Outcome, error) {
	ok, err := c.rdb.SetNX(ctx, fingerprint, inflightMarker, leaseTTL).Result()
	if err != nil {
		return 0, "", fmt.Errorf("idempotency begin: %w", err)
	}
	if ok {
		return LeaseGranted, "", nil
	}

	val, err := c.rdb.Get(ctx, fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		// The holder settled with a zero TTL or the lease expired between
		// our SETNX and GET; treat as in flight and let the caller retry.
		return AlreadyInFlight, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("idempotency inspect: %w", err)
	}
	if val == inflightMarker {
		return AlreadyInFlight, "", nil
	}
	return AlreadySettled, Outcome(val), nil
}

func (c *RedisCache) Settle(ctx context.Context, fingerprint string, outcome Outcome, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, fingerprint, string(outcome), ttl).Err(); err != nil {
		return fmt.Errorf("idempotency settle: %w", err)
	}
	return nil
}

func (c *RedisCache) Release(ctx context.Context, fingerprint string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{fingerprint}, inflightMarker).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

package health

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisChecker checks the Redis instance behind the source directory.
type RedisChecker struct {
	client redis.UniversalClient
	keys   atomic.Int64
}

func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string { return "redis" }

// Check pings Redis and counts the keys in the selected database.
func (r *RedisChecker) Check(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	n, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis dbsize failed: %w", err)
	}
	r.keys.Store(n)
	return nil
}

func (r *RedisChecker) Details() map[string]interface{} {
	return map[string]interface{}{"keys": r.keys.Load()}
}

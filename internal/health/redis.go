package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisChecker reports whether the Redis backing rate limits and one-time
// tokens is reachable.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{
		client: client,
	}
}

// HealthCheck sends a PING within the request's deadline.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

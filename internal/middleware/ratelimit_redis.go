package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore is a fixed-window rate limit store backed by Redis.
// Unlike InMemoryRateLimitStore it gives all API instances a shared view of
// request counts, so limits hold across a horizontally scaled deployment.
//
// On Redis errors the store fails open: a rate limiter outage should degrade
// to "no rate limiting", not take the API down with it.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// WithMetrics attaches metrics so Redis errors are counted.
func (s *RedisRateLimitStore) WithMetrics(m *Metrics) *RedisRateLimitStore {
	s.metrics = m
	return s
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
//
// Each key maps to a counter that is incremented per request and expires at
// the end of the window. The first increment sets the expiry, so the window
// starts on first use.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		return true, 0
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, config.WindowDuration).Err(); err != nil {
			if s.metrics != nil {
				s.metrics.IncRateLimitRedisErrors()
			}
		}
	}

	if count > int64(config.RequestsPerWindow) {
		ttl, err := s.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			if err != nil && s.metrics != nil {
				s.metrics.IncRateLimitRedisErrors()
			}
			return false, int(config.WindowDuration / time.Second)
		}
		retryAfter := int(ttl / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter
	}

	return true, 0
}

package obscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tphakala/birdsearch-go/internal/errors"
)

// RedisStore implements Store on a Redis backend. TTL expiry is enforced by
// Redis itself via SET with expiration.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore opens a Redis client for the given address.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Get returns the value stored under key, reporting a clean miss for both
// absent and expired keys.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, errors.Newf("redis get failed: %w", err).
			Category(errors.CategoryCache).
			Context("key", key).
			Component("obscache").
			Build()
	}
	return val, true, nil
}

// Set writes value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Newf("redis set failed: %w", err).
			Category(errors.CategoryCache).
			Context("key", key).
			Component("obscache").
			Build()
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

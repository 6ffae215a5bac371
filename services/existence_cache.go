package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExistenceCache remembers puzzle ids known to exist. Puzzles are never
// deleted, so a positive entry can not go stale; negative results are never
// cached.
type ExistenceCache interface {
	Known(ctx context.Context, id uint) (bool, error)
	Remember(ctx context.Context, id uint) error
}

type RedisExistenceCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisExistenceCache(client *redis.Client, ttl time.Duration) *RedisExistenceCache {
	return &RedisExistenceCache{redis: client, ttl: ttl}
}

func existenceKey(id uint) string {
	return fmt.Sprintf("puzzle:exists:%d", id)
}

func (c *RedisExistenceCache) Known(ctx context.Context, id uint) (bool, error) {
	err := c.redis.Get(ctx, existenceKey(id)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read from Redis: %w", err)
	}
	return true, nil
}

func (c *RedisExistenceCache) Remember(ctx context.Context, id uint) error {
	if err := c.redis.Set(ctx, existenceKey(id), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store in Redis: %w", err)
	}
	return nil
}

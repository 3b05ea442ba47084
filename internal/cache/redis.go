package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache implements Cache on a single Redis instance. Values are stored
// as JSON so structured maps and lists round-trip unchanged.
type RedisCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedis connects and pings a Redis instance.
func NewRedis(addr string, db int, pass string, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: pass,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{rdb: rdb, logger: logger}, nil
}

// NewRedisWithClient wraps an existing client (used by tests with miniredis).
func NewRedisWithClient(rdb *redis.Client, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{rdb: rdb, logger: logger}
}

func (c *RedisCache) Read(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached value [%s]: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) Write(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *RedisCache) WriteIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, key, data, ttl).Result()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisCache) Increment(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error) {
	v, err := c.rdb.IncrBy(ctx, key, by).Result()
	if err != nil {
		return 0, err
	}
	// First increment created the key; pin its lifetime.
	if v == by && ttl > 0 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (c *RedisCache) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	if err := c.rdb.SAdd(ctx, key, member).Err(); err != nil {
		return err
	}
	// Every add slides the expiry, so the set outlives the last writer by a
	// full ttl regardless of when the set was created.
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *RedisCache) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return members, nil
}

func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if c.rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

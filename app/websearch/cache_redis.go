package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares web search results between instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)

	return NewRedisCacheFromClient(client, ttl), nil
}

func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Key generates a consistent cache key for a normalised query.
func (c *RedisCache) Key(query string) string {
	hash := sha256.Sum256([]byte(query))
	return fmt.Sprintf("websearch:%x", hash[:8])
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Result, bool) {
	data, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Web search cache read failed", "error", err)
		return nil, false
	}

	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		// Invalid data format, delete and report a miss.
		c.client.Del(ctx, c.Key(key))
		return nil, false
	}
	return results, true
}

func (c *RedisCache) Set(ctx context.Context, key string, results []Result) {
	data, err := json.Marshal(results)
	if err != nil {
		slog.Warn("Failed to encode web search results", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.Key(key), data, c.ttl).Err(); err != nil {
		slog.Warn("Web search cache write failed", "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

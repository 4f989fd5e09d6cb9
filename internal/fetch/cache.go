package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "memereport:media:"

// MediaCache stores downloaded media keyed by URL
type MediaCache interface {
	// Get returns the cached bytes and whether the url was cached
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Set(ctx context.Context, url string, data []byte) error
	Close() error
}

// NoopCache never caches anything
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoopCache) Set(context.Context, string, []byte) error         { return nil }
func (NoopCache) Close() error                                      { return nil }

// RedisCache keeps media in Redis with a TTL
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisCache wraps an existing client. A zero ttl keeps entries forever.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
	}
}

// NewRedisCacheFromURL connects to redis://[user:password@]host:port/db and checks the connection
func NewRedisCacheFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", options.Addr, err)
	}
	return NewRedisCache(client, ttl), nil
}

func (c *RedisCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.keyPrefix+url).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, url string, data []byte) error {
	if err := c.client.Set(ctx, c.keyPrefix+url, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

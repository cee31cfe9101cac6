package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openblog/backend/internal/logger"
)

// ErrMiss is returned by GetJSON when the key is absent.
var ErrMiss = errors.New("cache miss")

// Counter receives hit/miss events.
type Counter interface {
	IncCounter(name string)
}

type Cache struct {
	client  *redis.Client
	log     *logger.Logger
	metrics Counter
}

// New connects to redis at addr and verifies it answers.
func New(ctx context.Context, addr string, log *logger.Logger, metrics Counter) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent("cache")
	log.Info(ctx, "connected to redis", map[string]any{"addr": addr})
	return NewWithClient(client, log, metrics), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, log *logger.Logger, metrics Counter) *Cache {
	if log == nil {
		log = logger.Default().WithComponent("cache")
	}
	return &Cache{client: client, log: log, metrics: metrics}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) count(name string) {
	if c.metrics != nil {
		c.metrics.IncCounter(name)
	}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.count("cache_misses_total")
		return "", false
	}
	if err != nil {
		c.count("cache_errors_total")
		c.log.Warn(ctx, "cache get failed", map[string]any{"key": key, "error": err.Error()})
		return "", false
	}
	c.count("cache_hits_total")
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.count("cache_errors_total")
		c.log.Warn(ctx, "cache set failed", map[string]any{"key": key, "error": err.Error()})
		return err
	}
	c.log.Debug(ctx, "cache set", map[string]any{"key": key, "ttl": ttl.String()})
	return nil
}

// GetJSON decodes the value stored at key into dst.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) error {
	val, ok := c.Get(ctx, key)
	if !ok {
		return ErrMiss
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		c.log.Warn(ctx, "dropping undecodable cache entry", map[string]any{"key": key})
		c.Delete(ctx, key)
		return ErrMiss
	}
	return nil
}

// SetJSON stores v encoded as JSON.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(data), ttl)
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.count("cache_errors_total")
		c.log.Warn(ctx, "cache delete failed", map[string]any{"keys": keys, "error": err.Error()})
		return err
	}
	return nil
}

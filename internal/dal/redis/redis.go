package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Client wraps a Redis connection used as a best-effort dedupe cache for
// webhook event ids. Correctness does not depend on it; the order store's
// compare-and-set does the real work.
type Client struct {
	rdb *redis.Client
}

// MustNewClient creates a new Redis client.
func MustNewClient() *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: viper.GetString("redis.addr"),
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	return &Client{rdb: rdb}
}

// Close closes the connection for graceful shutdown.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Seen reports whether key has been recorded, without recording it.
func (c *Client) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Remember marks key as seen with the given ttl. It returns true when the key
// was not seen before.
func (c *Client) Remember(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, 1, ttl).Result()
}

// Key builds a namespaced cache key.
func (c *Client) Key(operation, key string) string {
	return fmt.Sprintf("checkout:%s:%s", operation, key)
}

// Package redisstore keeps the simulation's shared state in redis so that
// several processes can train against one episode count.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zeu5/locomotion-rl/types"
)

const DefaultKey = "locomotion:episodes"

// Counter is an EpisodeCounter backed by a redis integer
type Counter struct {
	client *redis.Client
	key    string
	owned  bool
}

var _ types.EpisodeCounter = &Counter{}

type Option func(*Counter)

// WithKey sets the redis key holding the count
func WithKey(key string) Option {
	return func(c *Counter) {
		if key != "" {
			c.key = key
		}
	}
}

// New connects to the redis server at addr
func New(addr string, opts ...Option) *Counter {
	c := NewFromClient(redis.NewClient(&redis.Options{
		Addr: addr,
	}), opts...)
	c.owned = true
	return c
}

// NewFromClient uses an existing client, which stays owned by the caller
func NewFromClient(client *redis.Client, opts ...Option) *Counter {
	c := &Counter{
		client: client,
		key:    DefaultKey,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Counter) Key() string {
	return c.key
}

// Ping checks that the server is reachable
func (c *Counter) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Next increments the counter atomically on the server
func (c *Counter) Next(ctx context.Context) (int64, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", c.key, err)
	}
	return n, nil
}

func (c *Counter) Value(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, c.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	return n, nil
}

// Reset removes the count
func (c *Counter) Reset(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", c.key, err)
	}
	return nil
}

// Close closes the client if the counter created it
func (c *Counter) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

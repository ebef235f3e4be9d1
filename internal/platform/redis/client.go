// Package redis opens the shared go-redis client behind the TrustView cache
// and the authorization tuple store.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trustline/internal/platform/config"
)

type Client struct {
	*redis.Client
}

// New connects and pings. It returns (nil, nil) when no URL is configured,
// which callers treat as "run without Redis".
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Client{Client: rdb}, nil
}

func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Health is the readiness probe. A failed ping reports how many pooled
// connections were in use, which separates an outage from pool exhaustion.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		stats := c.PoolStats()
		return fmt.Errorf("redis ping (pool total=%d idle=%d timeouts=%d): %w",
			stats.TotalConns, stats.IdleConns, stats.Timeouts, err)
	}
	return nil
}

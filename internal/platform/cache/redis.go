package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jara-commerce/api/internal/platform/config"
)

// NewRedisClient builds a pooled client from cfg and verifies connectivity with PING.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("cache: redis address is not configured")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Pinger adapts a Redis client to the readiness probe contract.
type Pinger struct {
	Client redis.UniversalClient
}

// Ping reports whether Redis answers within ctx.
func (p Pinger) Ping(ctx context.Context) error {
	if p.Client == nil {
		return errors.New("cache: redis client not configured")
	}
	return p.Client.Ping(ctx).Err()
}

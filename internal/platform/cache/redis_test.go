package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/jara-commerce/api/internal/platform/config"
)

func TestNewRedisClientPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: srv.Addr(), PoolSize: 2})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := (Pinger{Client: client}).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	srv.Close()
	if err := (Pinger{Client: client}).Ping(context.Background()); err == nil {
		t.Fatalf("expected ping to fail once redis is down")
	}
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without address")
	}
}

// Package redis caches indicator bundles and publishes signal updates.
// Every call goes through a CircuitBreaker so an unavailable Redis degrades
// the service instead of stalling it.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis client.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// NewClient creates a client and pings the server. The client is returned even
// when the ping fails so callers can run degraded behind the breaker.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return client, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return client, nil
}

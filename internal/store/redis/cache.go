package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"coinsignal/internal/model"
)

const defaultBundleTTL = 5 * time.Minute

// Cache stores computed bundles as JSON under bundle:{symbol}:{fingerprint}.
type Cache struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
}

// NewCache creates a bundle cache. ttl <= 0 uses five minutes.
func NewCache(client *goredis.Client, cb *CircuitBreaker, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultBundleTTL
	}
	return &Cache{client: client, cb: cb, ttl: ttl}
}

// BundleKey returns the cache key for symbol and fingerprint.
func BundleKey(symbol, fingerprint string) string {
	return "bundle:" + symbol + ":" + fingerprint
}

// GetBundle returns (nil, nil) on a miss.
func (c *Cache) GetBundle(ctx context.Context, symbol, fingerprint string) (*model.IndicatorBundle, error) {
	var raw []byte
	err := c.cb.Execute(func() error {
		b, err := c.client.Get(ctx, BundleKey(symbol, fingerprint)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get bundle %s: %w", symbol, err)
	}
	if raw == nil {
		return nil, nil
	}

	var bundle model.IndicatorBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("unmarshal bundle %s: %w", symbol, err)
	}
	return &bundle, nil
}

// PutBundle stores bundle with the cache TTL.
func (c *Cache) PutBundle(ctx context.Context, symbol, fingerprint string, bundle *model.IndicatorBundle) error {
	err := c.cb.Execute(func() error {
		return c.client.Set(ctx, BundleKey(symbol, fingerprint), bundle.JSON(), c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis put bundle %s: %w", symbol, err)
	}
	return nil
}

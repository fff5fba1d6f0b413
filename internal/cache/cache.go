// Package cache is the key-value port the block decision engine uses as a
// read-through accelerator over the attempt log.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache miss")

// Drivers accepted by New
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Store is a string key-value store with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// Config selects and configures a Store
type Config struct {
	Driver   string
	RedisURL string
	Prefix   string
}

// New builds the store selected by cfg.Driver
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(cfg.Prefix, 10*time.Minute), nil
	case DriverRedis:
		return NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

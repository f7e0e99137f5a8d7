// Package cache is a small key/value abstraction with a Redis backend for
// deployments and an in-process backend for development and tests.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/Tomlord1122/takeout/internal/config"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("cache: key not found")

// Client defines the cache operations.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores a value. A zero ttl never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Incr adds one to a counter, setting ttl when the key is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
	Ping(ctx context.Context) error
	Close() error
}

// New builds the client selected by cfg.Driver.
func New(cfg config.CacheConfig) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix), nil
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}

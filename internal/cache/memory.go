package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryClient struct {
	prefix string
	c      *gocache.Cache
	// guards the read-modify-write in Incr
	mu sync.Mutex
}

type counter struct {
	n         int64
	expiresAt time.Time
}

// NewMemory returns an in-process client backed by go-cache.
func NewMemory(prefix string) Client {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (m *memoryClient) key(k string) string { return prefixed(m.prefix, k) }

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *memoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(m.key(key), value, ttlOrForever(ttl))
	return nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.c.Get(m.key(key))
	return ok, nil
}

func (m *memoryClient) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.key(key)
	now := time.Now()
	if v, ok := m.c.Get(k); ok {
		if ctr, ok := v.(*counter); ok {
			ctr.n++
			return ctr.n, ctr.expiresAt.Sub(now), nil
		}
	}
	ctr := &counter{n: 1, expiresAt: now.Add(ttl)}
	m.c.Set(k, ctr, ttlOrForever(ttl))
	return 1, ttl, nil
}

func (m *memoryClient) Ping(context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}

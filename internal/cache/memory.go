package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process memory. Suitable for a single instance.
type MemoryStore struct {
	prefix string
	items  *gocache.Cache
}

// NewMemoryStore creates a memory store that purges expired items every cleanupInterval
func NewMemoryStore(prefix string, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		prefix: prefix,
		items:  gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	raw, found := m.items.Get(m.prefix + key)
	if !found {
		return "", ErrMiss
	}

	value, ok := raw.(string)
	if !ok {
		return "", ErrMiss
	}
	return value, nil
}

func (m *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.items.Set(m.prefix+key, value, ttl)
	return nil
}

func (m *MemoryStore) Forget(_ context.Context, key string) error {
	m.items.Delete(m.prefix + key)
	return nil
}

// Flush drops every entry
func (m *MemoryStore) Flush() {
	m.items.Flush()
}

package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type MemoryProvider struct {
	mu    sync.Mutex
	cache *lru.Cache[string, item]
	now   func() time.Time
}

type item struct {
	value     string
	expiresAt time.Time
}

const defaultMemoryCacheSize = 10_000

type MemoryOption func(*MemoryProvider)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryProvider) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemoryProvider(opts ...MemoryOption) (*MemoryProvider, error) {
	c, err := lru.New[string, item](defaultMemoryCacheSize)
	if err != nil {
		return nil, err
	}
	m := &MemoryProvider{cache: c, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *MemoryProvider) Get(ctx context.Context, key string) (string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, ok := m.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return cached.value, nil
}

func (m *MemoryProvider) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Add(key, item{value: value, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryProvider) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.cache.Add(key, item{value: value, expiresAt: m.now().Add(ttl)})
	return true, nil
}

func (m *MemoryProvider) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	return nil
}

// live must be called with mu held.
func (m *MemoryProvider) live(key string) (item, bool) {
	cached, exists := m.cache.Get(key)
	if !exists {
		return item{}, false
	}
	if !m.now().Before(cached.expiresAt) {
		m.cache.Remove(key)
		return item{}, false
	}
	return cached, true
}

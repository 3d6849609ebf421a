package certificate

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache with a fixed time-to-live.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	cert    *Certificate
	expires time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns a cache whose entries live for ttl. A non-positive
// ttl keeps entries until invalidated.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]cacheEntry),
	}
}

func (m *MemoryCache) Get(_ context.Context, id int64) (*Certificate, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.cert.clone(), true, nil
}

func (m *MemoryCache) Put(_ context.Context, c *Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[c.ID] = cacheEntry{cert: c.clone(), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

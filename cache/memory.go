package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data   []byte
	expire time.Time
}

// Memory is an in-process Cache, used when no memcached server is set up.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Fetch(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[key]
	if e == nil {
		return nil, ErrMiss
	}
	if !m.now().Before(e.expire) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return e.data, nil
}

func (m *Memory) Store(ctx context.Context, key string, data []byte, expire time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Expired entries go lazily; sweep now and then so the map stays small.
	if len(m.entries) > 1024 {
		now := m.now()
		for k, e := range m.entries {
			if !now.Before(e.expire) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[key] = &memoryEntry{
		data:   append([]byte(nil), data...),
		expire: m.now().Add(expire),
	}
	return nil
}

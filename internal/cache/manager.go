package cache

import (
	"sync"
	"time"
)

// Manager owns named cache instances, lazily created with process lifetime.
type Manager struct {
	maxSize    int
	defaultTTL time.Duration

	mu     sync.Mutex
	caches map[string]*Cache
}

// NewManager creates a manager whose caches default to the given size and
// TTL.
func NewManager(maxSize int, defaultTTL time.Duration) *Manager {
	return &Manager{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		caches:     make(map[string]*Cache),
	}
}

// Get returns the named cache, creating it on first use.
func (m *Manager) Get(name string) *Cache {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.caches[name]
	if !ok {
		c = New(m.maxSize, m.defaultTTL)
		m.caches[name] = c
	}
	return c
}

// ClearAll clears every cache.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.caches {
		c.Clear()
	}
}

// CleanupAll sweeps expired entries from every cache and returns the total
// removed.
func (m *Manager) CleanupAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, c := range m.caches {
		total += c.CleanupExpired()
	}
	return total
}

// AllStats returns statistics keyed by cache name.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]Stats, len(m.caches))
	for name, c := range m.caches {
		stats[name] = c.Stats()
	}
	return stats
}

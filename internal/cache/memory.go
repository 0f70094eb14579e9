package cache

import (
	"strings"
	"sync"
	"time"
)

// Memory is a thread-safe in-process Layer. Expired entries are dropped
// lazily on read and periodically by a janitor goroutine so prefix scans
// stay cheap.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	nowFn   func() time.Time

	janitorStop chan struct{}
	janitorOnce sync.Once
}

var _ Layer = (*Memory)(nil)

// NewMemory creates an empty in-memory cache. janitorInterval <= 0 disables
// the background sweep; lazy expiry on read still applies.
func NewMemory(janitorInterval time.Duration) *Memory {
	m := &Memory{
		entries:     make(map[string]*Entry),
		nowFn:       func() time.Time { return time.Now().UTC() },
		janitorStop: make(chan struct{}),
	}

	if janitorInterval > 0 {
		go m.janitor(janitorInterval)
	}
	return m
}

// SetClock overrides the cache's clock. Test helper.
func (m *Memory) SetClock(nowFn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFn = nowFn
}

func (m *Memory) Get(key string) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	now := m.nowFn()
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !entry.Servable(now) {
		m.mu.Lock()
		// Re-check under the write lock; a Set may have replaced it.
		if current, ok := m.entries[key]; ok && !current.Servable(m.nowFn()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, nil
	}
	return entry, nil
}

func (m *Memory) Set(key string, value interface{}, ttl, swr time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	m.entries[key] = &Entry{
		Value:      value,
		StoredAt:   now,
		FreshUntil: now.Add(ttl),
		StaleUntil: now.Add(ttl + swr),
	}
	return nil
}

func (m *Memory) Invalidate(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

// Len returns the number of live entries. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Stop terminates the janitor goroutine. Safe to call more than once.
func (m *Memory) Stop() {
	m.janitorOnce.Do(func() {
		close(m.janitorStop)
	})
}

func (m *Memory) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.janitorStop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	for key, entry := range m.entries {
		if !entry.Servable(now) {
			delete(m.entries, key)
		}
	}
}

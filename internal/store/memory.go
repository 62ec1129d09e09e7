package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	meta      map[string]string
	expiresAt time.Time
}

// MemoryKV is an in-process KV used for tests and local runs
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryKV creates an empty in-memory KV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for expiry checks
func (m *MemoryKV) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

var _ KV = (*MemoryKV)(nil)

// Put implements KV
func (m *MemoryKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if meta != nil {
		entry.meta = make(map[string]string, len(meta))
		for k, v := range meta {
			entry.meta[k] = v
		}
	}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

// Get implements KV
func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok || m.expired(entry) {
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// List implements KV
func (m *MemoryKV) List(ctx context.Context, prefix string) ([]KeyInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]KeyInfo, 0, len(m.entries))
	for name, entry := range m.entries {
		if !strings.HasPrefix(name, prefix) || m.expired(entry) {
			continue
		}
		info := KeyInfo{Name: name}
		if entry.meta != nil {
			info.Meta = make(map[string]string, len(entry.meta))
			for k, v := range entry.meta {
				info.Meta[k] = v
			}
		}
		keys = append(keys, info)
	}
	return keys, nil
}

// Ping implements KV
func (m *MemoryKV) Ping(ctx context.Context) error {
	return nil
}

// TTL returns the remaining lifetime of key, zero when it has no expiry or
// does not exist.
func (m *MemoryKV) TTL(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok || entry.expiresAt.IsZero() {
		return 0
	}
	return entry.expiresAt.Sub(m.now())
}

func (m *MemoryKV) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt)
}

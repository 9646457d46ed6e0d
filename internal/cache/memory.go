package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raaihank/doc-sentinel/internal/review"
)

type memoryEntry struct {
	snap      review.Snapshot
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemoryStore creates an in-memory store. ttl <= 0 keeps sessions forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, id string, snap review.Snapshot) error {
	entry := memoryEntry{snap: snap}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = entry
	m.evictExpiredLocked()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (review.Snapshot, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok || m.expired(entry) {
		m.misses.Add(1)
		return review.Snapshot{}, ErrSessionNotFound
	}
	m.hits.Add(1)
	return entry.snap, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	sessions := int64(len(m.entries))
	m.mu.RUnlock()

	stats := &Stats{
		Backend:  "memory",
		Hits:     m.hits.Load(),
		Misses:   m.misses.Load(),
		Sessions: sessions,
	}
	stats.computeHitRate()
	return stats, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt)
}

func (m *MemoryStore) evictExpiredLocked() {
	for id, entry := range m.entries {
		if m.expired(entry) {
			delete(m.entries, id)
		}
	}
}

package deadletter

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the durable key-value interface dead letters are written to.
// Keys are unique per entry and never updated in place, so implementations
// need no locking beyond their own internals.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in a plain map with per-entry expiry. It backs
// single-node deployments and tests; expired entries are evicted lazily on
// read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || s.expired(key, entry) {
		return nil, nil
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for key, entry := range s.entries {
		if !strings.HasPrefix(key, prefix) || s.expired(key, entry) {
			continue
		}
		out[key] = append([]byte(nil), entry.value...)
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) expired(key string, entry memoryEntry) bool {
	if entry.expiresAt.IsZero() || time.Now().Before(entry.expiresAt) {
		return false
	}
	delete(s.entries, key)
	return true
}

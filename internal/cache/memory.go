package cache

import (
	"context"
	"sync"
	"time"

	"calculator-service/internal/metrics"
)

// MemoryStore keeps entries in a map. Used for development and tests; it
// satisfies every Store guarantee except durability.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]Entry
	maxEntries int

	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
	cleanupInterval time.Duration
}

// NewMemoryStore creates an in-memory store. cleanupInterval <= 0 uses a
// 5 minute default; maxEntries of zero means unbounded.
func NewMemoryStore(maxEntries int, cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	s := &MemoryStore{
		items:           make(map[string]Entry),
		maxEntries:      maxEntries,
		stopCleanup:     make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}

	//background cleanup routine
	go s.cleanupExpired()

	return s
}

func (s *MemoryStore) Get(_ context.Context, fingerprint string) (Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.items[fingerprint]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}

	now := time.Now()
	if entry.IsExpired(now) {
		s.mu.Lock()
		if e, exists := s.items[fingerprint]; exists && e.IsExpired(now) {
			delete(s.items, fingerprint)
			metrics.CacheEvictionsTotal.Inc()
		}
		s.mu.Unlock()
		return Entry{}, false, nil
	}

	return entry, true, nil
}

func (s *MemoryStore) Put(_ context.Context, fingerprint string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[fingerprint] = entry

	// Capacity backstop: drop oldest-created entries until back under the
	// limit. TTL remains the primary eviction policy.
	if s.maxEntries > 0 {
		for len(s.items) > s.maxEntries {
			oldestKey := ""
			var oldest time.Time
			for k, e := range s.items {
				if oldestKey == "" || e.CreatedAt.Before(oldest) {
					oldestKey = k
					oldest = e.CreatedAt
				}
			}
			delete(s.items, oldestKey)
			metrics.CacheEvictionsTotal.Inc()
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	delete(s.items, fingerprint)
	s.mu.Unlock()
	return nil
}

// cleanupExpired runs periodically to remove expired entries.
func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.items {
				if e.IsExpired(now) {
					delete(s.items, k)
					metrics.CacheEvictionsTotal.Inc()
				}
			}
			s.mu.Unlock()
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine. Call this on shutdown or in tests.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Len returns the number of items currently in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shaharia-lab/f1mcp/observability"
)

type memoryEntry struct {
	value     json.RawMessage
	createdAt time.Time
	ttl       time.Duration
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// MemoryStore is the in-memory Store implementation. The internal map is the
// only mutable shared state; the mutex is never held across a compute call.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64

	logger observability.Logger
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(logger observability.Logger) *MemoryStore {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		logger:  logger,
		now:     time.Now,
	}
}

// GetOrCompute implements Store.
func (s *MemoryStore) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (json.RawMessage, error) {
	if value, ok := s.lookup(key); ok {
		s.hits.Add(1)
		return value, nil
	}
	s.misses.Add(1)

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		// An in-flight computation may have stored the value while this
		// caller was waiting for the flight slot.
		if value, ok := s.lookup(key); ok {
			return value, nil
		}

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		s.store(key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(json.RawMessage), nil
}

// Invalidate implements Store.
func (s *MemoryStore) Invalidate(ctx context.Context, keyPrefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key := range s.entries {
		if strings.HasPrefix(key, keyPrefix) {
			delete(s.entries, key)
			removed++
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"prefix":  keyPrefix,
		"removed": removed,
	}).Debug("Cache invalidated")

	return removed, nil
}

// Stats implements Store. Expired entries are pruned so EntryCount reflects
// live entries only.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	now := s.now()

	s.mu.Lock()
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
		}
	}
	entryCount := int64(len(s.entries))
	s.mu.Unlock()

	return Stats{
		EntryCount: entryCount,
		HitCount:   s.hits.Load(),
		MissCount:  s.misses.Load(),
	}, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) lookup(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(s.now()) {
		delete(s.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (s *MemoryStore) store(key string, value json.RawMessage, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		value:     value,
		createdAt: s.now(),
		ttl:       ttl,
	}
}

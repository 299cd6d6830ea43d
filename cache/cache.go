// Package cache provides the key-value store that sits between tool handlers
// and the upstream data provider. Entries expire after their TTL; a failed
// compute is never cached. Every backend guarantees at most one concurrent
// compute per key.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (json.RawMessage, error)

// Stats describes the store's observable state.
type Stats struct {
	EntryCount int64 `json:"entryCount"`
	HitCount   int64 `json:"hitCount"`
	MissCount  int64 `json:"missCount"`
}

// Store is the exclusive interface to cached data. Handlers never hold
// references to entries across calls; they read and write through this
// interface only.
type Store interface {
	// GetOrCompute returns the cached value for key if a live entry exists,
	// otherwise invokes compute, stores the result with the given ttl, and
	// returns it. Concurrent callers for the same uncached key share a
	// single compute. A failing compute stores nothing.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (json.RawMessage, error)

	// Invalidate removes every entry whose key starts with keyPrefix and
	// reports how many were removed. An empty prefix clears the store.
	Invalidate(ctx context.Context, keyPrefix string) (int64, error)

	// Stats returns live entry and hit/miss counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources held by the store.
	Close() error
}

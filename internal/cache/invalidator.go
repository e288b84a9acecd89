// Package cache provides the invalidation side of the query cache used
// by gate clients.  Caches are mutated only by marking entries stale;
// readers refetch on the next access.  Direct local writes of
// server-shaped data are deliberately not supported.
package cache

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Memory is an in-process invalidator.  Each logical key carries a
// generation counter; Invalidate bumps it, and readers that remembered
// an older generation treat their data as stale.
type Memory struct {
	mu   sync.Mutex
	gens map[string]uint64
}

// NewMemory returns an empty in-process invalidator.
func NewMemory() *Memory {
	return &Memory{gens: make(map[string]uint64)}
}

// Invalidate marks the key stale.  It never fails.
func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	m.gens[key]++
	m.mu.Unlock()
	return nil
}

// Generation returns the current generation for a key.  Zero means the
// key has never been invalidated.
func (m *Memory) Generation(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[key]
}

// Redis invalidates by deleting the cached value, so the next read
// misses and refetches.  Keys are namespaced with a prefix shared with
// the response-cache middleware.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis returns a Redis-backed invalidator.  A nil client yields an
// invalidator whose calls are no-ops, mirroring how the middleware
// degrades when Redis is unavailable.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "cache"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// Invalidate deletes the cache entry for the logical key.
func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, r.prefix+":"+key).Err()
}

package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// ShardedCache is an in-process Store split into fnv-hashed shards to keep
// lock contention low when many pairs write concurrently.
type ShardedCache struct {
	shards [numShards]*shard
	now    func() time.Time
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

type entry struct {
	value     []byte
	updatedAt time.Time
	expiresAt time.Time // zero means no expiry
}

// NewShardedCache creates a new sharded cache.
func NewShardedCache() *ShardedCache {
	c := &ShardedCache{now: time.Now}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard{items: make(map[string]entry)}
	}
	return c
}

var _ Store = (*ShardedCache)(nil)

func (c *ShardedCache) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

func (c *ShardedCache) Get(_ context.Context, key string) ([]byte, error) {
	s := c.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || (!e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)) {
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (c *ShardedCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	e := entry{value: append([]byte(nil), value...), updatedAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s := c.getShard(key)
	s.mu.Lock()
	s.items[key] = e
	s.mu.Unlock()
	return nil
}

func (c *ShardedCache) Delete(_ context.Context, key string) error {
	s := c.getShard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Len returns total items across all shards, expired ones included until Cleanup.
func (c *ShardedCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *ShardedCache) Cleanup() int {
	removed := 0
	now := c.now()
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// CacheStats provides cache statistics.
type CacheStats struct {
	TotalItems  int            `json:"total_items"`
	ShardCounts [numShards]int `json:"shard_counts"`
	OldestAge   time.Duration  `json:"oldest_age"`
}

// Stats returns cache statistics.
func (c *ShardedCache) Stats() CacheStats {
	stats := CacheStats{}
	var oldest time.Time

	for i, s := range c.shards {
		s.mu.RLock()
		stats.ShardCounts[i] = len(s.items)
		stats.TotalItems += len(s.items)
		for _, e := range s.items {
			if oldest.IsZero() || e.updatedAt.Before(oldest) {
				oldest = e.updatedAt
			}
		}
		s.mu.RUnlock()
	}

	if !oldest.IsZero() {
		stats.OldestAge = c.now().Sub(oldest)
	}
	return stats
}

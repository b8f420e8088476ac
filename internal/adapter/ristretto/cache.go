// Package ristretto implements the inline-completion result cache using
// dgraph-io/ristretto as an in-process L1 cache.
package ristretto

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache de-duplicates identical inline completion prompts for a short TTL.
// Entries go stale quickly as the notebook changes, so the TTL is the real
// eviction mechanism and the byte budget is a backstop.
type Cache struct {
	c   *ristretto.Cache[string, string]
	ttl time.Duration
}

// New creates the cache. maxCostBytes bounds the total size of cached
// completions; ttl bounds how long a hit stays valid.
func New(maxCostBytes int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Get retrieves a cached completion.
func (c *Cache) Get(key string) (string, bool) {
	return c.c.Get(key)
}

// Set stores a completion. Admission is best-effort; a rejected set just
// means the next identical prompt goes to the provider again.
func (c *Cache) Set(key, value string) {
	c.c.SetWithTTL(key, value, int64(len(value)), c.ttl)
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}

// Package denylist caches revoked token ids so Authorize can reject them
// without a store read. A miss means "unknown", never "not revoked".
package denylist

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a bounded set of revoked token ids keyed by jti.
type Cache struct {
	c   *ristretto.Cache[string, time.Time]
	now func() time.Time
}

// New builds a cache holding at most maxEntries ids.
func New(maxEntries int64) (*Cache, error) {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, time.Time]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize denylist cache: %w", err)
	}
	return &Cache{c: c, now: time.Now}, nil
}

// Add remembers id until expiresAt. Ids whose token already expired are
// skipped since expiry rejects them anyway.
func (d *Cache) Add(id string, expiresAt time.Time) {
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return
	}
	d.c.SetWithTTL(id, expiresAt, 1, ttl)
	d.c.Wait()
}

// Contains reports whether id is known to be revoked.
func (d *Cache) Contains(id string) bool {
	_, ok := d.c.Get(id)
	return ok
}

// Close releases the cache goroutines.
func (d *Cache) Close() {
	d.c.Close()
}

// Package cache holds short-lived copies of per-client results listings.
package cache

import (
	"context"
	"sync"
	"time"
)

// ResultsCache stores the encoded results listing of one client. Entries are
// tagged with a per-client generation: Get reports the generation it looked
// under, Set only lands if that generation is still current, and Invalidate
// moves to a new one. A listing that raced a write can never be served after
// the write's Invalidate.
type ResultsCache interface {
	Get(ctx context.Context, username string) (payload []byte, gen uint64, ok bool, err error)
	Set(ctx context.Context, username string, gen uint64, payload []byte) error
	Invalidate(ctx context.Context, username string) error
}

// Cache is the in-process ResultsCache.
type Cache struct {
	mu   sync.RWMutex
	ttl  time.Duration
	m    map[string]entry
	gens map[string]uint64
}

type entry struct {
	val []byte
	gen uint64
	exp time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache{
		ttl:  ttl,
		m:    make(map[string]entry),
		gens: make(map[string]uint64),
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, uint64, bool, error) {
	now := time.Now()
	c.mu.RLock()
	gen := c.gens[key]
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || e.gen != gen {
		return nil, gen, false, nil
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// re-check, a fresh Set may have landed in between
		if cur, ok := c.m[key]; ok && now.After(cur.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, gen, false, nil
	}

	return e.val, gen, true, nil
}

func (c *Cache) Set(_ context.Context, key string, gen uint64, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[key] != gen {
		return nil
	}

	c.m[key] = entry{val: val, gen: gen, exp: time.Now().Add(c.ttl)}
	return nil
}

func (c *Cache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	c.gens[key]++
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}

// Noop never stores anything; used when RESULTS_CACHE=none.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, uint64, bool, error) { return nil, 0, false, nil }
func (Noop) Set(context.Context, string, uint64, []byte) error         { return nil }
func (Noop) Invalidate(context.Context, string) error                  { return nil }

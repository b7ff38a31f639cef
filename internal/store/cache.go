package store

import (
	"errors"
	"sync"
	"time"

	"github.com/mfields/weathervane/internal/common"
	"github.com/mfields/weathervane/internal/weather"
)

var (
	// ErrNotFound is returned when no live entry exists for a key.
	ErrNotFound = errors.New("no cached result for key")
)

type entry struct {
	result  *weather.Result
	expiry  time.Time
	written uint64
}

// SessionCache is a concurrency-safe in-memory cache of query results, keyed
// by normalized city text plus request kind. Its purpose is rate-limit
// hygiene for repeated identical queries, not correctness.
//
// Each key carries a generation counter: Begin issues a new generation before
// a fetch starts, and Put discards completions whose generation is older than
// the latest issued one. A result that arrives after the user already issued
// a newer query for the same key is dropped instead of clobbering the cache.
type SessionCache struct {
	mu  sync.RWMutex
	ttl time.Duration

	data map[string]*entry
	gens map[string]uint64
}

// NewSessionCache creates a cache whose entries expire after ttl.
func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{
		ttl:  ttl,
		data: make(map[string]*entry),
		gens: make(map[string]uint64),
	}
}

// Key builds the canonical cache key for a city and kind.
func Key(city string, kind weather.RequestKind) string {
	return common.NormalizeCity(city) + ":" + string(kind)
}

// Begin reserves the next generation for the key. The caller passes the
// returned generation to Put when the fetch completes.
func (c *SessionCache) Begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[key]++
	return c.gens[key]
}

// Get returns the live entry for the key. Expired entries are treated as
// absent; eviction is lazy, performed on lookup.
func (c *SessionCache) Get(key string) (*weather.Result, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(e.expiry) {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, stillThere := c.data[key]; stillThere && time.Now().After(cur.expiry) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	return e.result, nil
}

// Put stores a result under the key unless a newer generation has been
// issued since gen was obtained, in which case the write is silently dropped
// (last writer wins, stale completions discarded).
func (c *SessionCache) Put(key string, result *weather.Result, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen < c.gens[key] {
		return false
	}
	c.data[key] = &entry{
		result:  result,
		expiry:  time.Now().Add(c.ttl),
		written: gen,
	}
	return true
}

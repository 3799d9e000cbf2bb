package cache

import (
	"context"
	"sync"
	"time"

	"walletwatch/internal/metrics"
)

// DefaultTTL is how long a fetched value stays fresh
const DefaultTTL = 60 * time.Second

// Fetcher retrieves the authoritative value for a key on a cache miss
type Fetcher func(ctx context.Context, key string) (map[string]interface{}, error)

// ChangeListener receives the new value whenever a key is refetched
type ChangeListener func(value map[string]interface{})

// StateCache is a TTL keyed cache of materialized account/contract state with
// get-or-fetch semantics and per-key change subscriptions. Staleness is
// resolved on read: an expired entry is replaced by the next Get, never
// proactively.
type StateCache struct {
	fetcher Fetcher
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	smu    sync.RWMutex
	nextID int
	subs   map[string]map[int]ChangeListener

	// Injectable for tests
	nowFn func() time.Time
}

// entry has its own lock so a slow fetch for one key never blocks reads of
// other keys. The per-key lock also collapses concurrent stale reads into a
// single fetch.
type entry struct {
	mu        sync.Mutex
	value     map[string]interface{}
	fetchedAt time.Time
	has       bool
}

// New creates a cache. A zero ttl falls back to DefaultTTL.
func New(fetcher Fetcher, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StateCache{
		fetcher: fetcher,
		ttl:     ttl,
		entries: make(map[string]*entry),
		subs:    make(map[string]map[int]ChangeListener),
		nowFn:   time.Now,
	}
}

// Get returns the cached value if fresh, otherwise fetches, stores and
// publishes the new value. A failed fetch propagates to the caller and leaves
// any stale entry in place, so the cache never regresses to empty on error.
func (c *StateCache) Get(ctx context.Context, key string) (map[string]interface{}, error) {
	e := c.entryFor(key)

	e.mu.Lock()
	if e.has && c.nowFn().Sub(e.fetchedAt) < c.ttl {
		value := e.value
		e.mu.Unlock()
		metrics.CacheHits.Inc()
		return value, nil
	}

	metrics.CacheMisses.Inc()
	value, err := c.fetcher(ctx, key)
	if err != nil {
		e.mu.Unlock()
		metrics.CacheFetchErrors.Inc()
		return nil, err
	}
	e.value = value
	e.fetchedAt = c.nowFn()
	e.has = true
	e.mu.Unlock()

	c.publish(key, value)
	return value, nil
}

// Peek returns the entry without triggering a fetch, regardless of freshness
func (c *StateCache) Peek(key string) (map[string]interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.has
}

// OnChange subscribes to refetched values for one key and returns the
// unsubscribe handle
func (c *StateCache) OnChange(key string, fn ChangeListener) func() {
	c.smu.Lock()
	defer c.smu.Unlock()

	c.nextID++
	id := c.nextID
	if c.subs[key] == nil {
		c.subs[key] = make(map[int]ChangeListener)
	}
	c.subs[key][id] = fn

	return func() {
		c.smu.Lock()
		defer c.smu.Unlock()
		delete(c.subs[key], id)
	}
}

// Evict removes one entry
func (c *StateCache) Evict(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry
func (c *StateCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

func (c *StateCache) entryFor(key string) *entry {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e
	}
	e = &entry{}
	c.entries[key] = e
	return e
}

func (c *StateCache) publish(key string, value map[string]interface{}) {
	c.smu.RLock()
	listeners := make([]ChangeListener, 0, len(c.subs[key]))
	for _, fn := range c.subs[key] {
		listeners = append(listeners, fn)
	}
	c.smu.RUnlock()

	for _, fn := range listeners {
		fn(value)
	}
}

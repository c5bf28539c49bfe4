package cachesync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Entry is a cached value. Entries are replaced, never modified.
type Entry struct {
	Key               string
	Value             any
	LoadedAt          time.Time
	LastInvalidatedAt time.Time
}

// Loader fetches the authoritative value of key.
type Loader func(ctx context.Context, key string) (any, error)

// Stats counts cache activity.
type Stats struct {
	Loads         int
	Invalidations int
}

// Cache is a lazy read-through cache. An invalidated key is refetched on
// its next read.
type Cache struct {
	loader Loader
	clock  clockwork.Clock

	mu          sync.Mutex
	entries     map[string]*Entry
	invalidated map[string]time.Time
	stats       Stats

	// generations is bumped on every invalidation of a key; a load that
	// sees it change was started before the invalidation and is not cached.
	generations map[string]uint64
	loading     map[string]int
}

// NewCache creates a cache backed by loader.
func NewCache(loader Loader, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		loader:      loader,
		clock:       clock,
		entries:     make(map[string]*Entry),
		invalidated: make(map[string]time.Time),
		generations: make(map[string]uint64),
		loading:     make(map[string]int),
	}
}

// Get returns the cached value of key, loading it when absent. A value
// whose load overlapped an invalidation of key is returned but not cached.
func (c *Cache) Get(ctx context.Context, key string) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.Value, nil
	}
	gen := c.generations[key]
	c.loading[key]++
	c.mu.Unlock()

	v, err := c.loader(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading[key]--; c.loading[key] == 0 {
		delete(c.loading, key)
	}
	if err != nil {
		return nil, err
	}
	c.stats.Loads++
	if c.generations[key] != gen {
		return v, nil
	}
	c.entries[key] = &Entry{
		Key:               key,
		Value:             v,
		LoadedAt:          c.clock.Now(),
		LastInvalidatedAt: c.invalidated[key],
	}
	return v, nil
}

// Peek returns the entry of key without loading it.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Invalidate drops the cached value of each key.
func (c *Cache) Invalidate(keys ...string) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.invalidate(key, now)
	}
}

// InvalidatePrefix drops every cached key starting with prefix and returns
// the dropped keys in order.
func (c *Cache) InvalidatePrefix(prefix string) []string {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped []string
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			dropped = append(dropped, key)
		}
	}
	sort.Strings(dropped)
	for _, key := range dropped {
		c.invalidate(key, now)
	}
	for key := range c.loading {
		if strings.HasPrefix(key, prefix) {
			c.generations[key]++
		}
	}
	return dropped
}

func (c *Cache) invalidate(key string, now time.Time) {
	delete(c.entries, key)
	c.invalidated[key] = now
	c.generations[key]++
	c.stats.Invalidations++
}

// LastInvalidated returns when key was last invalidated.
func (c *Cache) LastInvalidated(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.invalidated[key]
	return t, ok
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Key builds a session-scoped cache key.
func Key(sessionID string, parts ...string) string {
	return sessionID + "/" + strings.Join(parts, "/")
}

// SessionPrefix is the prefix shared by every key of sessionID.
func SessionPrefix(sessionID string) string {
	return sessionID + "/"
}

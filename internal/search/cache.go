package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Cache defaults.
const (
	// DefaultCacheTTL is how long an entry stays valid.
	DefaultCacheTTL = time.Hour

	// DefaultMaxEntries is the size bound before batch eviction kicks in.
	DefaultMaxEntries = 100

	// DefaultEvictBatch is how many of the oldest entries one eviction removes.
	DefaultEvictBatch = 10
)

// CacheConfig configures the result cache.
type CacheConfig struct {
	// TTL is the entry time-to-live. Entries older than this are misses.
	TTL time.Duration

	// MaxEntries bounds the cache size.
	MaxEntries int

	// EvictBatch is the number of oldest entries removed when the size
	// bound is exceeded.
	EvictBatch int

	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

type cacheEntry struct {
	payload   []byte
	createdAt time.Time
}

// Cache memoizes serialized search responses keyed by normalized query
// parameters. Entries expire after the TTL; stale entries remain physically
// present until evicted. All operations are serialized by a single mutex so
// no partial eviction state is ever observable.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	evictBatch int
	now        func() time.Time
}

// NewCache creates a result cache, applying defaults for unset fields.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.EvictBatch == 0 {
		cfg.EvictBatch = DefaultEvictBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		evictBatch: cfg.EvictBatch,
		now:        cfg.Now,
	}
}

// Get returns the cached payload for the key if present and fresh.
// An expired entry is a miss but stays in place until evicted.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.createdAt) >= c.ttl {
		return nil, false
	}
	return entry.payload, true
}

// Put inserts or overwrites the payload for the key. When the resulting size
// exceeds the bound, the oldest entries by creation time are removed
// immediately in the same call.
func (c *Cache) Put(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{payload: payload, createdAt: c.now()}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyedEntry struct {
		key       string
		createdAt time.Time
	}
	ordered := make([]keyedEntry, 0, len(c.entries))
	for k, e := range c.entries {
		ordered = append(ordered, keyedEntry{key: k, createdAt: e.createdAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].createdAt.Before(ordered[j].createdAt)
	})

	evict := c.evictBatch
	if evict > len(ordered) {
		evict = len(ordered)
	}
	for _, e := range ordered[:evict] {
		delete(c.entries, e.key)
	}
}

// Len returns the number of physically present entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheKey builds the deterministic cache key from the full parameter set.
// Any parameter change produces a different key; this is not a semantic
// similarity cache.
func CacheKey(query string, maxResults, fromYear, toYear, minCitations int, publicationTypes []string, openAccessOnly bool) string {
	types := append([]string(nil), publicationTypes...)
	sort.Strings(types)

	return fmt.Sprintf("q=%s|max=%d|from=%d|to=%d|cit=%d|types=%s|oa=%s",
		strings.ToLower(strings.TrimSpace(query)),
		maxResults,
		fromYear,
		toYear,
		minCitations,
		strings.Join(types, ","),
		strconv.FormatBool(openAccessOnly),
	)
}

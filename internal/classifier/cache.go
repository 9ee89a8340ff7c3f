package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/suPer8Hu/agent-squad/internal/intent"
)

const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 1000
)

type cacheEntry struct {
	cls     intent.Classification
	created time.Time
	expires time.Time
}

// Cache is the in-process classification cache keyed by normalized text.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	now     func() time.Time
	entries map[string]*cacheEntry
	hits    int64
	misses  int64
}

type CacheStats struct {
	Entries     int        `json:"entries"`
	MaxEntries  int        `json:"maxEntries"`
	Hits        int64      `json:"hits"`
	Misses      int64      `json:"misses"`
	HitRate     float64    `json:"hitRate"`
	MemoryBytes int        `json:"memoryBytes"`
	Oldest      *time.Time `json:"oldest,omitempty"`
	Newest      *time.Time `json:"newest,omitempty"`
}

func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &Cache{
		ttl:     ttl,
		max:     maxEntries,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
	}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) Get(key string) (intent.Classification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && !c.now().Before(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return intent.Classification{}, false
	}
	c.hits++
	return e.cls.Clone(), true
}

func (c *Cache) Set(key string, cls intent.Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{cls: cls.Clone(), created: now, expires: now.Add(c.ttl)}
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.created.Before(oldest) {
			oldestKey, oldest = k, e.created
		}
	}
	delete(c.entries, oldestKey)
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep()
		}
	}
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := CacheStats{Entries: len(c.entries), MaxEntries: c.max, Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = float64(c.hits) / float64(total)
	}
	for k, e := range c.entries {
		// rough: key + reasoning + fixed struct overhead
		st.MemoryBytes += 2*len(k) + 2*len(e.cls.Reasoning) + 200
		created := e.created
		if st.Oldest == nil || created.Before(*st.Oldest) {
			st.Oldest = &created
		}
		if st.Newest == nil || created.After(*st.Newest) {
			st.Newest = &created
		}
	}
	return st
}

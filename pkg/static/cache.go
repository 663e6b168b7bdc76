package static

import (
	"container/list"
	"sync"
	"time"
)

// CacheConfig configures a ResponseCache.
type CacheConfig struct {
	// TTL is how long a cached Context is valid. Default: 30s.
	TTL time.Duration

	// MaxEntries is the maximum number of cached entries. Uses LRU eviction
	// when exceeded. Default: 100.
	MaxEntries int
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{TTL: 30 * time.Second, MaxEntries: 100}
}

type cacheEntry struct {
	ctx       *Context
	expiresAt time.Time
}

func (e *cacheEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

type cacheItem struct {
	key   string
	entry *cacheEntry
}

// ResponseCache is an LRU, TTL-bounded cache of Query results keyed by full
// URL. Off by default; it exists because full data routers generally offer
// one.
type ResponseCache struct {
	mu      sync.Mutex
	config  *CacheConfig
	entries map[string]*list.Element
	order   *list.List
}

// NewResponseCache builds a ResponseCache. A nil config uses
// DefaultCacheConfig.
func NewResponseCache(config *CacheConfig) *ResponseCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return &ResponseCache{config: config, entries: make(map[string]*list.Element), order: list.New()}
}

// Get returns the cached Context for fullURL, if present and unexpired.
func (c *ResponseCache) Get(fullURL string) (*Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fullURL]
	if !ok {
		return nil, false
	}
	item := elem.Value.(*cacheItem)
	if item.entry.isExpired() {
		c.order.Remove(elem)
		delete(c.entries, fullURL)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return item.entry.ctx, true
}

// Set stores ctx under fullURL, evicting the least recently used entry if
// the cache is at capacity.
func (c *ResponseCache) Set(fullURL string, ctx *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{ctx: ctx, expiresAt: time.Now().Add(c.config.TTL)}
	if elem, ok := c.entries[fullURL]; ok {
		elem.Value.(*cacheItem).entry = entry
		c.order.MoveToFront(elem)
		return
	}
	for c.order.Len() >= c.config.MaxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheItem).key)
	}
	elem := c.order.PushFront(&cacheItem{key: fullURL, entry: entry})
	c.entries[fullURL] = elem
}

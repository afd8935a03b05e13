package editor

import "sync"

// Cache holds data payloads already fetched in this page session. One Cache
// is shared by reference between every Session that needs it.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]string
}

type cacheKey struct {
	site string
	path string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]string)}
}

// Get returns the cached payload for path on site.
func (c *Cache) Get(site, path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheKey{site, path}]
	return v, ok
}

// Put stores a payload.
func (c *Cache) Put(site, path, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{site, path}] = text
}

// Invalidate drops a payload.
func (c *Cache) Invalidate(site, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{site, path})
}

// Len returns the number of cached payloads.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

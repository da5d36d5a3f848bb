package notify

import (
	"sync"
	"time"
)

// dedupCache remembers recently notified keys until their TTL passes
type dedupCache struct {
	items map[string]time.Time
	mutex sync.Mutex
	now   func() time.Time
}

func newDedupCache() *dedupCache {
	return &dedupCache{
		items: make(map[string]time.Time),
		now:   time.Now,
	}
}

// claim returns true if key was not claimed within ttl, and claims it
func (c *dedupCache) claim(key string, ttl time.Duration) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	if expiresAt, ok := c.items[key]; ok && now.Before(expiresAt) {
		return false
	}

	// Drop expired entries while holding the lock
	for k, expiresAt := range c.items {
		if !now.Before(expiresAt) {
			delete(c.items, k)
		}
	}

	c.items[key] = now.Add(ttl)
	return true
}

func (c *dedupCache) release(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

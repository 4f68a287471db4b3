package llm

import (
	"strings"
	"sync"
	"time"

	"github.com/shepherdwind/bean-talk/internal/service"
)

type cacheEntry struct {
	expiry     time.Time
	suggestion service.Suggestion
}

// suggestionCache provides thread-safe caching for category suggestions.
type suggestionCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	now     func() time.Time
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

func newSuggestionCache(ttl time.Duration) *suggestionCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &suggestionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// cacheKey identifies a request by merchant, hint and the category list it
// was offered.
func cacheKey(merchant, hint string, categories []string) string {
	return strings.ToLower(strings.TrimSpace(merchant)) + "\x00" +
		strings.ToLower(strings.TrimSpace(hint)) + "\x00" +
		strings.Join(categories, "\x1f")
}

func (c *suggestionCache) get(key string) (service.Suggestion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || c.now().After(entry.expiry) {
		return service.Suggestion{}, false
	}
	return entry.suggestion, true
}

func (c *suggestionCache) set(key string, suggestion service.Suggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		suggestion: suggestion,
		expiry:     c.now().Add(c.ttl),
	}
}

func (c *suggestionCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *suggestionCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}

func (c *suggestionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine.
func (c *suggestionCache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}

package rules

import (
	"sync"
	"time"
)

// InMemoryDefinitionCache is an in-memory DefinitionCache, safe for concurrent use
type InMemoryDefinitionCache struct {
	defs     []*Definition
	cachedAt time.Time
	config   CacheConfig
	valid    bool
	now      func() time.Time
	mu       sync.RWMutex
}

// NewInMemoryDefinitionCache creates a new in-memory definition cache
func NewInMemoryDefinitionCache(config CacheConfig) *InMemoryDefinitionCache {
	return &InMemoryDefinitionCache{
		config: config,
		now:    time.Now,
	}
}

// Get returns a copy of the cached definitions, or nil if invalid or expired.
// An empty but valid cache returns a non-nil empty slice.
func (c *InMemoryDefinitionCache) Get() []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil
	}

	out := make([]*Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Set stores a copy of defs
func (c *InMemoryDefinitionCache) Set(defs []*Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.defs = make([]*Definition, len(defs))
	copy(c.defs, defs)
	c.cachedAt = c.now()
	c.valid = true
}

// Invalidate clears the cache
func (c *InMemoryDefinitionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.defs = nil
}

// IsValid returns true if the cache holds unexpired data
func (c *InMemoryDefinitionCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked()
}

func (c *InMemoryDefinitionCache) validLocked() bool {
	if !c.valid {
		return false
	}
	if c.config.TTL > 0 && c.now().Sub(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}

package rules

import "time"

// DefinitionCache caches the active definitions list so evaluations do not
// hit the store on every request.
type DefinitionCache interface {
	// Get retrieves cached definitions, returns nil on a miss or expiry
	Get() []*Definition

	// Set stores definitions in cache
	Set(defs []*Definition)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means entries only go away on Invalidate.
	TTL time.Duration
}

// DefaultCacheConfig returns the default cache behaviour: no TTL, invalidate on mutation
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

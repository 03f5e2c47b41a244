package rules

import "time"

// RulesCache caches the active rules list used by FireAll, so a batch over every
// rule does not list the store each time.
type RulesCache interface {
	// Get retrieves cached rules, returns nil if cache miss or expired
	Get() []*Rule

	// Set stores rules in cache
	Set(rules []*Rule)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means no expiration (invalidated on rule mutations only).
	TTL time.Duration
}

// DefaultCacheConfig returns the engine's default: no TTL.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

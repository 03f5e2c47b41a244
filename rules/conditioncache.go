package rules

import (
	"time"

	"github.com/maypok86/otter"

	"github.com/liamcoop/prcycle/expr"
)

// DefaultConditionCacheCapacity bounds the number of distinct condition texts kept.
const DefaultConditionCacheCapacity = 1024

// ConditionCache memoises successful compilations by condition text, so rules that
// share a condition parse it once. Compiled conditions are immutable, so entries are
// shared freely. One cache must only ever see a single schema.
type ConditionCache struct {
	store otter.Cache[string, *expr.CompiledCondition]
}

// NewConditionCache builds an S3-FIFO cache holding at most capacity conditions.
// A zero ttl keeps entries until evicted by capacity.
func NewConditionCache(capacity int, ttl time.Duration) (*ConditionCache, error) {
	if capacity <= 0 {
		capacity = DefaultConditionCacheCapacity
	}

	builder := otter.MustBuilder[string, *expr.CompiledCondition](capacity)

	var (
		cache otter.Cache[string, *expr.CompiledCondition]
		err   error
	)
	if ttl > 0 {
		cache, err = builder.WithTTL(ttl).Build()
	} else {
		cache, err = builder.Build()
	}
	if err != nil {
		return nil, err
	}

	return &ConditionCache{store: cache}, nil
}

// Get returns the compiled condition for text, if cached.
func (c *ConditionCache) Get(text string) (*expr.CompiledCondition, bool) {
	cond, ok := c.store.Get(text)
	if ok {
		ConditionCacheHits.Inc()
	} else {
		ConditionCacheMisses.Inc()
	}
	return cond, ok
}

// Set stores a compiled condition under its source text.
func (c *ConditionCache) Set(cond *expr.CompiledCondition) {
	c.store.Set(cond.Source(), cond)
}

// Del removes text from the cache.
func (c *ConditionCache) Del(text string) {
	c.store.Delete(text)
}

// Size returns the number of cached conditions.
func (c *ConditionCache) Size() int {
	return c.store.Size()
}

// Close stops the cache's background goroutines.
func (c *ConditionCache) Close() {
	c.store.Close()
}

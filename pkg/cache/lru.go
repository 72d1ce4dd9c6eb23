package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/c360/kgraph/errors"
)

// lruCache bounds the entry count and evicts the least recently used entry
// on overflow.
type lruCache[V any] struct {
	backing *lru.Cache[string, V]
	stats   *Statistics
	metrics *cacheMetrics
}

// NewLRU creates a size-bounded cache with least-recently-used eviction.
func NewLRU[V any](size int, options ...Option[V]) (Cache[V], error) {
	if size <= 0 {
		return nil, errors.WrapInvalid(nil, "cache", "NewLRU", "size must be positive")
	}
	opts := applyOptions(options...)
	metrics, err := metricsFor(opts)
	if err != nil {
		return nil, errors.WrapTransient(err, "cache", "NewLRU", "metrics registration failed")
	}

	c := &lruCache[V]{stats: NewStatistics(), metrics: metrics}
	backing, err := lru.NewWithEvict(size, func(key string, value V) {
		c.stats.Eviction()
		if c.metrics != nil {
			c.metrics.recordEviction()
		}
		if opts.evictCallback != nil {
			opts.evictCallback(key, value)
		}
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "cache", "NewLRU", "backing store setup failed")
	}
	c.backing = backing
	return c, nil
}

func (c *lruCache[V]) Get(key string) (V, bool) {
	value, exists := c.backing.Get(key)
	if exists {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
	} else {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
	}
	return value, exists
}

func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	existed := c.backing.Contains(key)
	c.backing.Add(key, value)

	c.stats.Set()
	c.stats.UpdateSize(int64(c.backing.Len()))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(c.backing.Len())
	}
	return !existed, nil
}

func (c *lruCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	// Remove triggers the eviction callback of the backing store, which
	// already updates the eviction counters.
	existed := c.backing.Remove(key)
	if existed {
		c.stats.Delete()
		c.stats.UpdateSize(int64(c.backing.Len()))
		if c.metrics != nil {
			c.metrics.recordDelete()
			c.metrics.updateSize(c.backing.Len())
		}
	}
	return existed, nil
}

func (c *lruCache[V]) Clear() error {
	c.backing.Purge()
	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	return nil
}

func (c *lruCache[V]) Size() int {
	return c.backing.Len()
}

func (c *lruCache[V]) Keys() []string {
	return c.backing.Keys()
}

func (c *lruCache[V]) Stats() *Statistics {
	return c.stats
}

func (c *lruCache[V]) Close() error {
	c.backing.Purge()
	return nil
}

// Package cache provides generic, thread-safe in-memory caches backing the
// structure reflection layer. Two implementations exist: an unbounded simple
// cache for small specification sets and an LRU cache for reflection results
// whose cardinality grows with the number of spaces and types.
//
// Statistics are always collected; Prometheus export is opt-in via
// WithMetrics.
package cache

import (
	"github.com/c360/kgraph/errors"
)

// Cache is a string-keyed cache of values of type V.
type Cache[V any] interface {
	// Get retrieves a value by key.
	Get(key string) (V, bool)

	// Set stores a value. The first return is true when a new entry was
	// created rather than an existing one updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry. The first return is true when the key
	// existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys currently present.
	Keys() []string

	// Stats returns the cache statistics.
	Stats() *Statistics

	// Close releases cache resources.
	Close() error
}

// EvictCallback is invoked with the key and value of every evicted entry.
type EvictCallback[V any] func(key string, value V)

// GetOrLoad returns the cached value for key, computing and storing it on a
// miss. Concurrent misses may compute the value more than once; the cached
// content is idempotent so the duplicate work is accepted.
func GetOrLoad[V any](c Cache[V], key string, load func() (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	if _, err := c.Set(key, value); err != nil {
		var zero V
		return zero, err
	}
	return value, nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(nil, "cache", "validateKey", "empty key")
	}
	return nil
}

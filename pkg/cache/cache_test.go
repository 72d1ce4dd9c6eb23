package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleCacheBasicOperations(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)
	defer c.Close()

	created, err := c.Set("a", "one")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "uno")
	require.NoError(t, err)
	assert.False(t, created)

	value, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "uno", value)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	deleted, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 0, c.Size())
}

func TestSimpleCacheRejectsEmptyKey(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Set("", 1)
	assert.Error(t, err)
}

func TestSimpleCacheStats(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", 1)
	c.Get("a")
	c.Get("b")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, 0.5, stats.HitRatio())
}

func TestSimpleCacheEvictionCallback(t *testing.T) {
	var evicted []string
	c, err := NewSimple(WithEvictionCallback(func(key string, _ int) {
		evicted = append(evicted, key)
	}))
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Delete("a")
	require.NoError(t, c.Clear())
	assert.ElementsMatch(t, []string{"a", "b"}, evicted)
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := NewLRU(2, WithEvictionCallback(func(key string, _ int) {
		evicted = append(evicted, key)
	}))
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	c.Get("a")
	_, _ = c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestLRUCacheRejectsNonPositiveSize(t *testing.T) {
	_, err := NewLRU[int](0)
	assert.Error(t, err)
}

func TestGetOrLoad(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)
	defer c.Close()

	loads := 0
	load := func() (string, error) {
		loads++
		return "computed", nil
	}

	for i := 0; i < 3; i++ {
		value, err := GetOrLoad(c, "key", load)
		require.NoError(t, err)
		assert.Equal(t, "computed", value)
	}
	assert.Equal(t, 1, loads)
}

func TestGetOrLoadPropagatesError(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)
	defer c.Close()

	_, err = GetOrLoad(c, "key", func() (string, error) {
		return "", fmt.Errorf("backend down")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Size())
}

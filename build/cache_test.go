package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gen(keys ...string) map[string]int64 {
	m := make(map[string]int64, len(keys))
	for i, k := range keys {
		m[k] = int64(i + 1)
	}
	return m
}

func TestGenerationCacheEvictsOldestGenerations(t *testing.T) {
	c := NewGenerationCache[string, int64](5)
	c.Add(gen("a", "b"))
	c.Add(gen("c", "d"))
	assert.Equal(t, []int{2, 2}, c.Generations())

	c.Add(gen("e", "f"))
	assert.Equal(t, []int{2, 2}, c.Generations())
	assert.Equal(t, 4, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Add(gen("g", "h", "i"))
	assert.Equal(t, []int{2, 3}, c.Generations())
	assert.Equal(t, 5, c.Len())
	_, ok = c.Get("c")
	assert.False(t, ok)
	_, ok = c.Get("e")
	assert.True(t, ok)
}

func TestGenerationCacheNeverEvictsNewest(t *testing.T) {
	c := NewGenerationCache[string, int64](2)
	c.Add(gen("a"))
	c.Add(gen("b", "c", "d", "e"))
	assert.Equal(t, []int{4}, c.Generations())
	for _, k := range []string{"b", "c", "d", "e"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
}

func TestGenerationCachePromotesHits(t *testing.T) {
	c := NewGenerationCache[string, int64](10)
	c.Add(map[string]int64{"a": 1})
	c.Add(map[string]int64{"b": 2})

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, []int{0, 2}, c.Generations())
	assert.Equal(t, 2, c.Len())

	hits, misses := c.Lookup([]string{"a", "b", "z"})
	assert.Equal(t, map[string]int64{"a": 1, "b": 2}, hits)
	assert.Equal(t, []string{"z"}, misses)
}

func TestGenerationCacheReinsertedKeyHasNewestValue(t *testing.T) {
	c := NewGenerationCache[string, int64](2)
	c.Add(map[string]int64{"a": 1})
	c.Add(map[string]int64{"b": 2})
	c.Add(map[string]int64{"c": 3})
	_, ok := c.Get("a")
	require.False(t, ok)

	c.Add(map[string]int64{"a": 9})
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(9), v)

	d := NewGenerationCache[string, int64](10)
	d.Add(map[string]int64{"x": 1})
	d.Add(map[string]int64{"x": 2})
	v, _ = d.Get("x")
	assert.Equal(t, int64(2), v)
}

func TestGenerationCacheReaddedKeysCountOnce(t *testing.T) {
	c := NewGenerationCache[string, int64](3)
	c.Add(gen("a", "b"))
	c.Add(gen("a", "b"))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []int{0, 2}, c.Generations())

	c.Add(gen("c"))
	assert.Equal(t, 3, c.Len(), "still within the ceiling")
	for _, k := range []string{"a", "b", "c"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
}

func TestGenerationCacheRemove(t *testing.T) {
	c := NewGenerationCache[string, int64](10)
	c.Add(map[string]int64{"a": 1, "b": 2})
	c.Add(map[string]int64{"a": 3})
	c.Remove("a")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCounter(t *testing.T) {
	c := NewCounter(41)
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(43), c.Next())
	assert.Equal(t, int64(43), c.Last())
}

package cache_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linedex/linedex/pkg/cache"
)

func TestLRULineCache_GetPut(t *testing.T) {
	t.Parallel()

	c := cache.NewLRULineCache(1024)

	_, ok := c.Get(0)
	assert.False(t, ok)

	c.Put(0, "hello")

	text, ok := c.Get(0)
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(5), stats.CurrentSize)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestLRULineCache_EvictsWhenOverBudget(t *testing.T) {
	t.Parallel()

	c := cache.NewLRULineCache(100)

	for i := range uint64(20) {
		c.Put(i, strings.Repeat("x", 10))
	}

	stats := c.Stats()
	assert.LessOrEqual(t, stats.CurrentSize, int64(100))
	assert.Less(t, stats.Entries, 20)
}

func TestLRULineCache_OversizedLineNotCached(t *testing.T) {
	t.Parallel()

	c := cache.NewLRULineCache(10)

	c.Put(0, strings.Repeat("x", 11))

	_, ok := c.Get(0)
	assert.False(t, ok)
}

func TestLRULineCache_RecentlyUsedSurvivesEviction(t *testing.T) {
	t.Parallel()

	c := cache.NewLRULineCache(50)

	c.Put(0, strings.Repeat("a", 10))

	// Keep line 0 hot while filling the cache past its budget.
	for i := uint64(1); i < 10; i++ {
		_, _ = c.Get(0)
		c.Put(i, strings.Repeat("b", 10))
	}

	_, ok := c.Get(0)
	assert.True(t, ok)
}

func TestLRULineCache_Clear(t *testing.T) {
	t.Parallel()

	c := cache.NewLRULineCache(1024)

	for i := range uint64(5) {
		c.Put(i, fmt.Sprintf("line %d", i))
	}

	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.CurrentSize)

	_, ok := c.Get(0)
	assert.False(t, ok)
}

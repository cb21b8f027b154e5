package cache_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niravscs/multiple-databases-demo/pkg/cache"
)

func TestLRUCache_Basic(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](3)

		c.Put("a", 1)
		c.Put("b", 2)

		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, val)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](3)

		val, ok := c.Get("missing")
		assert.False(t, ok)
		assert.Zero(t, val)
	})

	t.Run("replace returns previous value without evicting", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](3)
		evicted := 0
		c.SetEvictCallback(func(string, int) { evicted++ })

		c.Put("a", 1)
		old, existed := c.Put("a", 2)

		assert.True(t, existed)
		assert.Equal(t, 1, old)
		assert.Zero(t, evicted)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("panics on non-positive capacity", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { cache.NewLRUCache[string, int](0) })
	})
}

func TestLRUCache_Eviction(t *testing.T) {
	t.Parallel()

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)
		var evictedKeys []string
		c.SetEvictCallback(func(k string, _ int) { evictedKeys = append(evictedKeys, k) })

		c.Put("a", 1)
		c.Put("b", 2)
		c.Get("a")
		c.Put("c", 3)

		_, ok := c.Get("b")
		assert.False(t, ok)
		assert.Equal(t, []string{"b"}, evictedKeys)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("peek does not promote", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)

		c.Put("a", 1)
		c.Put("b", 2)
		v, ok := c.Peek("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)
		c.Put("c", 3)

		_, ok = c.Peek("a")
		assert.False(t, ok, "a was oldest and must be evicted")
	})

	t.Run("remove invokes callback", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)
		var got int
		c.SetEvictCallback(func(_ string, v int) { got = v })

		c.Put("a", 7)
		v, ok := c.Remove("a")

		assert.True(t, ok)
		assert.Equal(t, 7, v)
		assert.Equal(t, 7, got)
		assert.Zero(t, c.Len())
	})

	t.Run("clear invokes callback for every entry", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](5)
		count := 0
		c.SetEvictCallback(func(string, int) { count++ })

		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)
		c.Clear()

		assert.Equal(t, 3, count)
		assert.Zero(t, c.Len())
	})
}

func TestLRUCache_PruneFunc(t *testing.T) {
	t.Parallel()

	c := cache.NewLRUCache[string, int](10)
	var pruned []string
	c.SetEvictCallback(func(k string, _ int) { pruned = append(pruned, k) })

	for i, k := range []string{"a", "b", "c", "d"} {
		c.Put(k, i)
	}

	n := c.PruneFunc(func(_ string, v int) bool { return v%2 == 0 })

	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"a", "c"}, pruned)
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get("b")
	assert.True(t, ok)
}

func TestLRUCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.NewLRUCache[int, int](50)
	var wg sync.WaitGroup

	for g := range 20 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 200 {
				c.Put(g*1000+i, i)
				c.Get(g*1000 + i)
				if i%10 == 0 {
					c.PruneFunc(func(int, int) bool { return false })
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

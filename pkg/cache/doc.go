// Package cache provides a generic, thread-safe LRU cache for bounding
// long-lived resources held in memory.
//
// The cache evicts the least recently used entry once it grows past its
// capacity. An optional eviction callback receives every entry that leaves
// the cache, which makes it suitable for owning resources that must be
// released, such as database connection pools.
//
// # Usage
//
//	pools := cache.NewLRUCache[uuid.UUID, *pgxpool.Pool](64)
//	pools.SetEvictCallback(func(_ uuid.UUID, p *pgxpool.Pool) {
//		go p.Close()
//	})
//
//	pools.Put(id, pool)
//	pool, ok := pools.Get(id)
//
// # Pruning
//
// PruneFunc removes every entry matching a predicate. Combined with a
// last-used timestamp stored in the value it implements idle reaping:
//
//	pools.PruneFunc(func(_ uuid.UUID, e *entry) bool {
//		return time.Since(e.LastUsed()) > idleTimeout
//	})
//
// Peek reads an entry without promoting it, so background inspection does
// not disturb the eviction order.
//
// All operations are O(1) except PruneFunc and Clear, which are linear in
// the number of entries.
package cache

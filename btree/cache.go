package btree

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Lzww0608/ConcordKV-sub001/arena"
)

// hotNodeCache implements spec §4.2's "Hot-node cache": a bounded
// key-to-leaf-handle index that lets Get skip the descent for
// frequently-read keys. Entries are verified against the target leaf's
// current contents on lookup, since a stale entry (key moved by a split
// or merge) is cheaper to detect than to eagerly invalidate everywhere.
type hotNodeCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, arena.Handle]
}

func newHotNodeCache(size int) *hotNodeCache {
	c, err := lru.New[string, arena.Handle](size)
	if err != nil {
		// size is always validated positive by the caller; New only
		// fails for size <= 0.
		c, _ = lru.New[string, arena.Handle](1)
	}
	return &hotNodeCache{inner: c}
}

func (c *hotNodeCache) lookup(key string) (arena.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

func (c *hotNodeCache) add(key string, h arena.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, h)
}

func (c *hotNodeCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// Package cache implements the storage core's cache layer (spec §4.4): a
// hash table keyed by string, one of six pluggable eviction policies, TTL
// expiry, and a background cleaner that reaps expired entries between
// accesses.
package cache

import (
	"sync"
	"time"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

// Config controls capacity, eviction, and TTL behavior for a Cache.
type Config struct {
	Capacity        int           // max live entries; 0 means unbounded
	MaxBytes        int64         // max total key+value bytes; 0 means unbounded
	Policy          Policy        // eviction policy once over capacity/bytes
	DefaultTTL      time.Duration // applied when Set's ttl argument is 0
	CleanupInterval time.Duration // background sweep period; 0 disables the cleaner
	Clock           common.Clock  // defaults to common.SystemClock{}
}

// DefaultConfig returns an LRU cache with a 60s cleanup interval and no
// default TTL, matching spec §4.4's stated default.
func DefaultConfig(capacity int) Config {
	return Config{
		Capacity:        capacity,
		Policy:          LRU,
		CleanupInterval: 60 * time.Second,
		Clock:           common.SystemClock{},
	}
}

// Stats mirrors spec §4.4's required counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Entries     int
	Bytes       int64
}

// HitRatio returns hits / (hits + misses), or 0 when there have been no
// lookups yet.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Cache is a capacity- and byte-bounded, TTL-aware, policy-pluggable
// cache over string keys (spec §4.4).
type Cache struct {
	mu     sync.RWMutex
	config Config
	clock  common.Clock
	policy evictionPolicy

	entries map[string]*entry
	bytes   int64

	hits, misses, evictions, expirations int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Cache and starts its background cleaner if
// config.CleanupInterval > 0.
func New(config Config) *Cache {
	if config.Clock == nil {
		config.Clock = common.SystemClock{}
	}
	c := &Cache{
		config:  config,
		clock:   config.Clock,
		policy:  newPolicy(config.Policy, config.Capacity),
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop()
	}
	return c
}

// cleanupLoop wakes on a ticker and reaps TTL-expired entries, grounded on
// the teacher's stop-channel-plus-background-goroutine shutdown shape
// (hashindex.HashIndex.compactionWorker).
func (c *Cache) cleanupLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for k, e := range c.entries {
		if c.isExpiredLocked(e, now) {
			c.removeLocked(k, e)
			c.expirations++
		}
	}
}

func (c *Cache) isExpiredLocked(e *entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Get returns a copy of the value stored for key, touching the eviction
// policy's recency/frequency state on a hit.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.isExpiredLocked(e, c.clock.Now()) {
		c.removeLocked(key, e)
		c.expirations++
		c.misses++
		return nil, false
	}
	c.policy.touch(key)
	c.hits++
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set upserts key with value and an optional per-entry ttl (0 uses
// config.DefaultTTL, which may itself be 0 meaning "never expires"),
// evicting under the configured policy until the cache is back within its
// capacity and byte budgets.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	expiresAt := c.expiryOf(now, ttl)

	if old, ok := c.entries[key]; ok {
		c.bytes += int64(len(value)) - int64(len(old.value))
		old.value = value
		old.expiresAt = expiresAt
		c.policy.touch(key)
		return
	}

	c.entries[key] = &entry{value: value, expiresAt: expiresAt}
	c.bytes += int64(len(key)) + int64(len(value))

	if evicted, ok := c.policy.insert(key); ok {
		// The policy already updated its own bookkeeping for this eviction
		// (e.g. ARC moved the key to a ghost list) — only the entry map
		// needs clearing.
		c.evictEntryOnlyLocked(evicted)
	}
	for c.overBudgetLocked() {
		victim, ok := c.policy.victim()
		if !ok {
			break
		}
		c.evictEntryLocked(victim)
	}
}

func (c *Cache) expiryOf(now time.Time, ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func (c *Cache) overBudgetLocked() bool {
	if c.config.Capacity > 0 && len(c.entries) > c.config.Capacity {
		return true
	}
	if c.config.MaxBytes > 0 && c.bytes > c.config.MaxBytes {
		return true
	}
	return false
}

// evictEntryLocked removes key from both the entry map and the policy's
// own bookkeeping, counting it as an eviction (distinct from an explicit
// Delete or a TTL expiration).
func (c *Cache) evictEntryLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.removeLocked(key, e)
	c.evictions++
}

// evictEntryOnlyLocked removes an entry the policy itself chose to evict
// during insert (ARC), without re-invoking policy.remove — the policy has
// already transitioned that key into its own ghost/ring state.
func (c *Cache) evictEntryOnlyLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.bytes -= int64(len(key)) + int64(len(e.value))
	delete(c.entries, key)
	c.evictions++
}

func (c *Cache) removeLocked(key string, e *entry) {
	c.bytes -= int64(len(key)) + int64(len(e.value))
	delete(c.entries, key)
	c.policy.remove(key)
}

// Delete removes key, releasing its memory. A no-op if key is absent.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// SetBatch and DeleteBatch apply their operations under the cache-global
// lock held once, per spec §4.4's "Batch variants: repeat under the
// cache-global rwlock held once."
func (c *Cache) SetBatch(pairs []common.KVPair, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	expiresAt := c.expiryOf(now, ttl)
	for _, kv := range pairs {
		key := string(kv.Key)
		if old, ok := c.entries[key]; ok {
			c.bytes += int64(len(kv.Value)) - int64(len(old.value))
			old.value = kv.Value
			old.expiresAt = expiresAt
			c.policy.touch(key)
			continue
		}
		c.entries[key] = &entry{value: kv.Value, expiresAt: expiresAt}
		c.bytes += int64(len(key)) + int64(len(kv.Value))
		if evicted, ok := c.policy.insert(key); ok {
			c.evictEntryOnlyLocked(evicted)
		}
	}
	for c.overBudgetLocked() {
		victim, ok := c.policy.victim()
		if !ok {
			break
		}
		c.evictEntryLocked(victim)
	}
}

func (c *Cache) DeleteBatch(keys [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		key := string(k)
		if e, ok := c.entries[key]; ok {
			c.removeLocked(key, e)
		}
	}
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Entries:     len(c.entries),
		Bytes:       c.bytes,
	}
}

// Close stops the background cleaner. Safe to call once; a Cache created
// with CleanupInterval == 0 never started a goroutine, so Close is then a
// no-op besides closing the channel.
func (c *Cache) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	return nil
}

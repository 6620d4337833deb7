package btree

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lzww0608/ConcordKV-sub001/arena"
	"github.com/Lzww0608/ConcordKV-sub001/common"
)

const (
	minAllowedOrder = 3
	maxAllowedOrder = 1000
	defaultOrder    = 100
)

// Config configures a B+Tree instance (spec §4.2).
type Config struct {
	Order int // fanout, clamped to [3, 1000], default 100

	AdaptiveFanout bool // spec §4.2 "Adaptive fanout"
	MinOrder       int
	MaxOrder       int
	AdaptEveryOps  int // recompute load every N operations, default 500

	HotNodeCache      bool // spec §4.2 "Hot-node cache"
	HotNodeCacheSize  int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Order:            defaultOrder,
		AdaptiveFanout:   true,
		MinOrder:         minAllowedOrder,
		MaxOrder:         maxAllowedOrder,
		AdaptEveryOps:    500,
		HotNodeCache:     true,
		HotNodeCacheSize: 1024,
	}
}

// pathEntry is one ancestor frame recorded during a descent: the ancestor
// node's handle and the index of the child that was followed.
type pathEntry struct {
	node arena.Handle
	idx  int
}

// Tree is the B+Tree storage engine (spec §4.2). Keys/values live entirely
// in the arena; there is no on-disk page format (spec §9's arena redesign
// hint, superseding the teacher's 4 KiB page/pager model).
type Tree struct {
	nodes *arena.Arena[node]

	mu sync.RWMutex // tree-level: guards root replacement (spec §3)

	// rootHandle is stored atomically so ConcurrentGet/ConcurrentPut can
	// read the current root without taking mu, while ordinary
	// Put/Delete (which already hold mu for their whole call) keep
	// reassigning it through setRoot on split/merge.
	rootHandle atomic.Uint32

	order    atomic.Int64
	minOrder int
	maxOrder int

	seq *common.MonotonicSeq

	adaptive *fanoutController
	cache    *hotNodeCache

	liveKeys atomic.Int64
	statsMu  sync.Mutex
	stats    common.Stats
	closed   atomic.Bool
}

// New creates an empty B+Tree per cfg.
func New(cfg Config) (*Tree, error) {
	order := cfg.Order
	if order == 0 {
		order = defaultOrder
	}
	if order < minAllowedOrder {
		order = minAllowedOrder
	}
	if order > maxAllowedOrder {
		order = maxAllowedOrder
	}

	minOrder, maxOrder := cfg.MinOrder, cfg.MaxOrder
	if minOrder == 0 {
		minOrder = minAllowedOrder
	}
	if maxOrder == 0 {
		maxOrder = maxAllowedOrder
	}

	t := &Tree{
		nodes:    arena.New[node](1024, false),
		minOrder: minOrder,
		maxOrder: maxOrder,
		seq:      common.NewMonotonicSeq(0),
	}
	t.order.Store(int64(order))
	t.setRoot(t.nodes.Alloc(*newLeaf()))

	if cfg.AdaptiveFanout {
		everyOps := cfg.AdaptEveryOps
		if everyOps <= 0 {
			everyOps = 500
		}
		t.adaptive = newFanoutController(everyOps, minOrder, maxOrder)
	}
	if cfg.HotNodeCache {
		size := cfg.HotNodeCacheSize
		if size <= 0 {
			size = 4096
		}
		t.cache = newHotNodeCache(size)
	}

	return t, nil
}

func (t *Tree) n(h arena.Handle) *node { return t.nodes.Get(h) }

func (t *Tree) getRoot() arena.Handle      { return arena.Handle(t.rootHandle.Load()) }
func (t *Tree) setRoot(h arena.Handle)     { t.rootHandle.Store(uint32(h)) }

func (t *Tree) touch(fn func(*common.Stats)) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	fn(&t.stats)
	t.stats.LastOperationUnixNano = time.Now().UnixNano()
}

func (t *Tree) currentOrder() int { return int(t.order.Load()) }

func (t *Tree) minFill() int {
	order := t.currentOrder()
	return (order + 1) / 2
}

// descendToLeaf walks from root to the leaf that would contain key,
// recording the ancestor path (handle + followed child index at each
// level).
func (t *Tree) descendToLeaf(key []byte) (leaf arena.Handle, path []pathEntry) {
	cur := t.getRoot()
	for !t.n(cur).isLeaf {
		idx := t.n(cur).childIndex(key)
		path = append(path, pathEntry{node: cur, idx: idx})
		cur = t.n(cur).children[idx]
	}
	return cur, path
}

func validateKeyValue(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	if len(key) > common.MaxKeyLenBTree {
		return common.ErrKeyTooLong
	}
	if len(value) > common.MaxValueLenBTree {
		return common.ErrValueTooLong
	}
	return nil
}

// Put inserts or overwrites key's value, splitting nodes as needed.
func (t *Tree) Put(key, value []byte) error {
	if err := validateKeyValue(key, value); err != nil {
		return err
	}
	if t.closed.Load() {
		return common.ErrClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, path := t.descendToLeaf(key)
	ln := t.n(leaf)
	idx, found := ln.searchKey(key)
	seq := t.seq.Next()
	_ = seq

	keyCopy := append([]byte(nil), key...)
	valCopy := append([]byte(nil), value...)
	if found {
		ln.values[idx] = valCopy
	} else {
		ln.keys = insertAt(ln.keys, idx, keyCopy)
		ln.values = insertAt(ln.values, idx, valCopy)
		t.liveKeys.Add(1)
	}
	ln.version++

	if len(ln.keys) > t.currentOrder() {
		t.splitLeaf(leaf, path)
	}

	if t.cache != nil {
		t.cache.invalidate(string(key))
	}
	if t.adaptive != nil {
		t.adaptive.recordInsert(t)
	}
	t.touch(func(s *common.Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(key) + len(value))
		s.NumKeys = t.liveKeys.Load()
	})
	return nil
}

// Update overwrites an existing key's value, returning ErrKeyNotFound if
// absent (spec §4.1's B+Tree update convention).
func (t *Tree) Update(key, value []byte) error {
	if err := validateKeyValue(key, value); err != nil {
		return err
	}
	if t.closed.Load() {
		return common.ErrClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, _ := t.descendToLeaf(key)
	ln := t.n(leaf)
	idx, found := ln.searchKey(key)
	if !found {
		return common.ErrKeyNotFound
	}
	ln.values[idx] = append([]byte(nil), value...)
	ln.version++

	if t.cache != nil {
		t.cache.invalidate(string(key))
	}
	t.touch(func(s *common.Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(key) + len(value))
	})
	return nil
}

// Get returns key's value or ErrKeyNotFound. The hot-node cache is
// consulted first; a cache hit still verifies the leaf actually holds the
// key, since splits/merges can move keys between leaves without
// invalidating a stale cache entry synchronously.
func (t *Tree) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, common.ErrKeyEmpty
	}
	if t.closed.Load() {
		return nil, common.ErrClosed
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.cache != nil {
		if h, ok := t.cache.lookup(string(key)); ok {
			ln := t.n(h)
			if idx, found := ln.searchKey(key); found {
				t.touch(func(s *common.Stats) {
					s.ReadCount++
					s.BytesRead += int64(len(ln.values[idx]))
				})
				return append([]byte(nil), ln.values[idx]...), nil
			}
		}
	}

	leaf, _ := t.descendToLeaf(key)
	ln := t.n(leaf)
	idx, found := ln.searchKey(key)

	if t.adaptive != nil {
		t.adaptive.recordSearch(t)
	}
	if !found {
		t.touch(func(s *common.Stats) { s.ReadCount++ })
		return nil, common.ErrKeyNotFound
	}
	if t.cache != nil {
		t.cache.add(string(key), leaf)
	}
	value := append([]byte(nil), ln.values[idx]...)
	t.touch(func(s *common.Stats) {
		s.ReadCount++
		s.BytesRead += int64(len(value))
	})
	return value, nil
}

// Delete removes key, rebalancing underfull nodes via borrow-then-merge.
func (t *Tree) Delete(key []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	if t.closed.Load() {
		return common.ErrClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, path := t.descendToLeaf(key)
	ln := t.n(leaf)
	idx, found := ln.searchKey(key)
	if !found {
		return common.ErrKeyNotFound
	}
	ln.keys = removeAt(ln.keys, idx)
	ln.values = removeAt(ln.values, idx)
	ln.version++
	t.liveKeys.Add(-1)

	if leaf != t.getRoot() && len(ln.keys) < t.minFill() {
		t.rebalance(leaf, path)
	}

	if t.cache != nil {
		t.cache.invalidate(string(key))
	}
	if t.adaptive != nil {
		t.adaptive.recordDelete(t)
	}
	t.touch(func(s *common.Stats) {
		s.DeleteCount++
		s.NumKeys = t.liveKeys.Load()
	})
	return nil
}

// Count returns the number of live keys.
func (t *Tree) Count() uint64 {
	v := t.liveKeys.Load()
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func (t *Tree) leftmostLeaf() arena.Handle {
	cur := t.getRoot()
	for !t.n(cur).isLeaf {
		cur = t.n(cur).children[0]
	}
	return cur
}

// RangeScan returns ordered pairs within the requested range, following
// leaf sibling pointers (spec §4.1).
func (t *Tree) RangeScan(start, end []byte, startInclusive, endInclusive bool, limit int) ([]common.KVPair, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var cur arena.Handle
	if start == nil {
		cur = t.leftmostLeaf()
	} else {
		cur, _ = t.descendToLeaf(start)
	}

	var out []common.KVPair
	for cur != arena.NilHandle {
		ln := t.n(cur)
		for i, k := range ln.keys {
			if start != nil {
				c := compareBytes(k, start)
				if c < 0 || (c == 0 && !startInclusive) {
					continue
				}
			}
			if end != nil {
				c := compareBytes(k, end)
				if c > 0 || (c == 0 && !endInclusive) {
					return trimLimit(out, limit), nil
				}
			}
			out = append(out, common.KVPair{
				Key:    append([]byte(nil), k...),
				Value:  append([]byte(nil), ln.values[i]...),
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		cur = ln.next
	}
	return out, nil
}

func trimLimit(out []common.KVPair, limit int) []common.KVPair {
	if limit > 0 && len(out) > limit {
		return out[:limit]
	}
	return out
}

// PrefixScan returns pairs whose key starts with prefix, using the
// next-key upper bound for ordered engines (spec §4.1).
func (t *Tree) PrefixScan(prefix []byte, limit int) ([]common.KVPair, error) {
	upper, ok := common.NextKeyUpperBound(prefix)
	if !ok {
		return t.RangeScan(prefix, nil, true, false, limit)
	}
	return t.RangeScan(prefix, upper, true, false, limit)
}

// Iterator is an ascending cursor over a snapshot of the whole tree: every
// pair is copied out when NewIterator is called, and later writes are not
// visible through it.
type Iterator struct {
	pairs []common.KVPair
	idx   int
}

func (it *Iterator) Next() bool      { it.idx++; return it.idx < len(it.pairs) }
func (it *Iterator) Key() []byte     { return it.pairs[it.idx].Key }
func (it *Iterator) Value() []byte   { return it.pairs[it.idx].Value }
func (it *Iterator) Error() error    { return nil }
func (it *Iterator) Close() error    { return nil }

// NewIterator returns an ascending cursor over every key in the tree.
func (t *Tree) NewIterator() (common.Iterator, error) {
	pairs, err := t.RangeScan(nil, nil, true, false, 0)
	if err != nil {
		return nil, err
	}
	return &Iterator{pairs: pairs, idx: -1}, nil
}

// Close marks the tree closed. It holds no file handles (purely
// in-memory), so there's nothing to flush.
func (t *Tree) Close() error {
	t.closed.Store(true)
	return nil
}

// Sync is a no-op: the B+Tree is purely in-memory.
func (t *Tree) Sync() error { return nil }

// Compact is a no-op: in-place updates mean the B+Tree never accumulates
// the write/space amplification a compaction would reclaim (spec §4.2).
func (t *Tree) Compact() error { return nil }

// Stats returns a copy of the tree's statistics.
func (t *Tree) Stats() common.Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	s := t.stats
	s.NumSegments = t.nodes.Len()
	return s
}

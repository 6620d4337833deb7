package hashengine

import (
	"sync"

	"github.com/Lzww0608/ConcordKV-sub001/rbtree"
)

// chainThreshold is the number of entries a bucket holds as a flat chain
// before it promotes to a red-black tree (spec table row 2: "Bucket array
// with chaining -> per-bucket rbtree at overflow"). Once promoted a bucket
// never demotes back to a chain.
const chainThreshold = 8

type chainEntry struct {
	key     []byte
	value   []byte
	seqNum  uint64
	deleted bool
}

// bucket is one slot of the engine's bucket array. Most buckets never see
// enough collisions to leave the chain representation; a bucket under
// heavy hash collision promotes its chain into an ordered rbtree so
// worst-case lookup stays logarithmic instead of linear.
type bucket struct {
	mu       sync.RWMutex
	chain    []chainEntry
	overflow *rbtree.Tree[rbtree.Entry]
}

func (b *bucket) indexOf(key []byte) int {
	for i := range b.chain {
		if string(b.chain[i].key) == string(key) {
			return i
		}
	}
	return -1
}

// get returns the stored entry for key, reporting whether it currently
// exists as a live (non-tombstone) value.
func (b *bucket) get(key []byte) (value []byte, seqNum uint64, deleted, found bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.overflow != nil {
		e, ok := b.overflow.Get(key)
		if !ok {
			return nil, 0, false, false
		}
		return e.Value, e.SeqNum, e.Deleted, true
	}
	idx := b.indexOf(key)
	if idx < 0 {
		return nil, 0, false, false
	}
	c := b.chain[idx]
	return c.value, c.seqNum, c.deleted, true
}

// put inserts or overwrites key, returning whether the key was previously
// absent-or-tombstoned (i.e. this write grows the live key count).
func (b *bucket) put(key, value []byte, seqNum uint64) (wasNewLive bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflow != nil {
		prev, existed := b.overflow.Get(key)
		b.overflow.Upsert(key, rbtree.Entry{Value: value, SeqNum: seqNum})
		return !existed || prev.Deleted
	}

	idx := b.indexOf(key)
	if idx >= 0 {
		wasNewLive = b.chain[idx].deleted
		b.chain[idx].value = value
		b.chain[idx].seqNum = seqNum
		b.chain[idx].deleted = false
		return wasNewLive
	}

	b.chain = append(b.chain, chainEntry{key: key, value: value, seqNum: seqNum})
	if len(b.chain) > chainThreshold {
		b.promoteLocked()
	}
	return true
}

// delete marks key as a tombstone if present, returning whether it existed
// as a live key.
func (b *bucket) delete(key []byte, seqNum uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflow != nil {
		prev, existed := b.overflow.Get(key)
		if !existed || prev.Deleted {
			return false
		}
		b.overflow.Upsert(key, rbtree.Entry{SeqNum: seqNum, Deleted: true})
		return true
	}

	idx := b.indexOf(key)
	if idx < 0 || b.chain[idx].deleted {
		return false
	}
	b.chain[idx].deleted = true
	b.chain[idx].seqNum = seqNum
	b.chain[idx].value = nil
	return true
}

// promoteLocked converts the flat chain into an rbtree once it grows past
// chainThreshold. Must be called with b.mu held for writing.
func (b *bucket) promoteLocked() {
	tree := rbtree.NewTree[rbtree.Entry]()
	for _, c := range b.chain {
		tree.Upsert(c.key, rbtree.Entry{Value: c.value, SeqNum: c.seqNum, Deleted: c.deleted})
	}
	b.overflow = tree
	b.chain = nil
}

// count returns the number of live (non-tombstone) entries in the bucket.
func (b *bucket) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.overflow != nil {
		n := 0
		b.overflow.Ascend(nil, nil, func(_ []byte, v rbtree.Entry) bool {
			if !v.Deleted {
				n++
			}
			return true
		})
		return n
	}
	n := 0
	for _, c := range b.chain {
		if !c.deleted {
			n++
		}
	}
	return n
}

// forEach visits every live key/value pair in the bucket, in no particular
// order for chain buckets and ascending order for promoted ones.
func (b *bucket) forEach(fn func(key, value []byte, seqNum uint64)) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.overflow != nil {
		b.overflow.Ascend(nil, nil, func(k []byte, v rbtree.Entry) bool {
			if !v.Deleted {
				fn(k, v.Value, v.SeqNum)
			}
			return true
		})
		return
	}
	for _, c := range b.chain {
		if !c.deleted {
			fn(c.key, c.value, c.seqNum)
		}
	}
}

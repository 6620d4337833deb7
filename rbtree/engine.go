package rbtree

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

// Engine is the standalone ordered-map storage engine built directly on
// Tree[Entry] (spec §4: "Red-black tree engine"). Unlike the LSM's
// memtable use of the same tree, Delete here physically removes the node:
// tombstones are an LSM-specific concept (spec §4.1).
type Engine struct {
	mu   sync.RWMutex
	tree *Tree[Entry]
	seq  *common.MonotonicSeq

	stats      common.Stats
	statsMu    sync.Mutex
	liveKeys   atomic.Int64
}

// New creates an empty red-black-tree engine.
func New() *Engine {
	return &Engine{
		tree: NewTree[Entry](),
		seq:  common.NewMonotonicSeq(0),
	}
}

func (e *Engine) touch(fn func(s *common.Stats)) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	fn(&e.stats)
	e.stats.LastOperationUnixNano = time.Now().UnixNano()
}

// Put stores or overwrites key's value.
func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	e.mu.Lock()
	prev, existed := e.tree.Get(key)
	e.tree.Upsert(key, Entry{Value: append([]byte(nil), value...), SeqNum: e.seq.Next()})
	e.mu.Unlock()

	if !existed || prev.Deleted {
		e.liveKeys.Add(1)
	}
	e.touch(func(s *common.Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(key) + len(value))
		s.NumKeys = e.liveKeys.Load()
	})
	return nil
}

// Get returns the value for key, or ErrKeyNotFound.
func (e *Engine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	entry, ok := e.tree.Get(key)
	e.mu.RUnlock()

	e.touch(func(s *common.Stats) {
		s.ReadCount++
		if ok {
			s.BytesRead += int64(len(entry.Value))
		}
	})
	if !ok || entry.Deleted {
		return nil, common.ErrKeyNotFound
	}
	return append([]byte(nil), entry.Value...), nil
}

// Update overwrites key's value, returning ErrKeyNotFound if key is absent
// (spec §4.1's B+Tree-style update convention, shared across ordered
// engines for consistency).
func (e *Engine) Update(key, value []byte) error {
	e.mu.Lock()
	entry, ok := e.tree.Get(key)
	if !ok || entry.Deleted {
		e.mu.Unlock()
		return common.ErrKeyNotFound
	}
	e.tree.Upsert(key, Entry{Value: append([]byte(nil), value...), SeqNum: e.seq.Next()})
	e.mu.Unlock()

	e.touch(func(s *common.Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(key) + len(value))
	})
	return nil
}

// Delete physically removes key, returning ErrKeyNotFound if absent.
func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	entry, ok := e.tree.Get(key)
	if !ok || entry.Deleted {
		e.mu.Unlock()
		return common.ErrKeyNotFound
	}
	e.tree.Delete(key)
	e.mu.Unlock()

	e.liveKeys.Add(-1)
	e.touch(func(s *common.Stats) {
		s.DeleteCount++
		s.NumKeys = e.liveKeys.Load()
	})
	return nil
}

// Count returns the number of live keys.
func (e *Engine) Count() uint64 {
	v := e.liveKeys.Load()
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// RangeScan returns ordered pairs within [start,end) / [start,end] per the
// inclusive flags, up to limit entries (0 = unlimited).
func (e *Engine) RangeScan(start, end []byte, startInclusive, endInclusive bool, limit int) ([]common.KVPair, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []common.KVPair
	scanStart := start
	if !startInclusive && start != nil {
		scanStart = append(append([]byte(nil), start...), 0x00)
	}
	e.tree.Ascend(scanStart, nil, func(key []byte, value Entry) bool {
		if end != nil {
			c := common.CompareKeys(key, end)
			if endInclusive && c > 0 {
				return false
			}
			if !endInclusive && c >= 0 {
				return false
			}
		}
		if !value.Deleted {
			out = append(out, common.KVPair{
				Key:     append([]byte(nil), key...),
				Value:   append([]byte(nil), value.Value...),
				SeqNum:  value.SeqNum,
				Deleted: false,
			})
		}
		return limit <= 0 || len(out) < limit
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PrefixScan returns pairs whose key starts with prefix.
func (e *Engine) PrefixScan(prefix []byte, limit int) ([]common.KVPair, error) {
	upper, ok := common.NextKeyUpperBound(prefix)
	if !ok {
		return e.RangeScan(prefix, nil, true, false, limit)
	}
	return e.RangeScan(prefix, upper, true, false, limit)
}

// Iterator implements common.Iterator over the tree's ascending order.
type Iterator struct {
	pairs []common.KVPair
	idx   int
}

func (it *Iterator) Next() bool {
	it.idx++
	return it.idx < len(it.pairs)
}
func (it *Iterator) Key() []byte   { return it.pairs[it.idx].Key }
func (it *Iterator) Value() []byte { return it.pairs[it.idx].Value }
func (it *Iterator) Error() error  { return nil }
func (it *Iterator) Close() error  { return nil }

// NewIterator returns an ascending cursor over a snapshot of the whole
// engine, taken by RangeScan when the cursor is created.
func (e *Engine) NewIterator() (common.Iterator, error) {
	pairs, err := e.RangeScan(nil, nil, true, false, 0)
	if err != nil {
		return nil, err
	}
	return &Iterator{pairs: pairs, idx: -1}, nil
}

// Close is a no-op: the engine holds no file handles.
func (e *Engine) Close() error { return nil }

// Sync is a no-op: purely in-memory.
func (e *Engine) Sync() error { return nil }

// Compact is a no-op for the in-memory ordered-map engine.
func (e *Engine) Compact() error { return nil }

// Stats returns a copy of the engine's statistics.
func (e *Engine) Stats() common.Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

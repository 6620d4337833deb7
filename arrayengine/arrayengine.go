// Package arrayengine implements the spec's "Array engine": a simple
// linear-scan store intended for small or tiny tables, where the
// bookkeeping overhead of a tree or hash table outweighs its benefit.
// Grounded on the common.StorageEngine contract and the teacher's
// hashindex Config/Stats texture (spec §4, §9: array engine normalizes to
// the shared {NONE, NOT_FOUND, PARAM, MEM} error convention rather than
// the source's bespoke 0/1 "modify" return).
package arrayengine

import (
	"sync"
	"time"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

type entry struct {
	key     []byte
	value   []byte
	seqNum  uint64
	deleted bool
}

// Engine is an unordered array-backed engine: every operation is O(n), by
// design, for workloads small enough that this never matters.
type Engine struct {
	mu      sync.RWMutex
	entries []entry
	seq     *common.MonotonicSeq

	statsMu sync.Mutex
	stats   common.Stats
}

// New creates an empty array engine.
func New() *Engine {
	return &Engine{seq: common.NewMonotonicSeq(0)}
}

func (e *Engine) touch(fn func(*common.Stats)) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	fn(&e.stats)
	e.stats.LastOperationUnixNano = time.Now().UnixNano()
}

func (e *Engine) indexOf(key []byte) int {
	for i := range e.entries {
		if string(e.entries[i].key) == string(key) {
			return i
		}
	}
	return -1
}

// Put stores or overwrites key's value.
func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	e.mu.Lock()
	idx := e.indexOf(key)
	seq := e.seq.Next()
	if idx >= 0 {
		e.entries[idx].value = append([]byte(nil), value...)
		e.entries[idx].seqNum = seq
		e.entries[idx].deleted = false
	} else {
		e.entries = append(e.entries, entry{
			key:    append([]byte(nil), key...),
			value:  append([]byte(nil), value...),
			seqNum: seq,
		})
	}
	count := int64(len(e.entries))
	e.mu.Unlock()

	e.touch(func(s *common.Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(key) + len(value))
		s.NumKeys = count
	})
	return nil
}

// Get returns key's value or ErrKeyNotFound.
func (e *Engine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	idx := e.indexOf(key)
	var out []byte
	found := idx >= 0 && !e.entries[idx].deleted
	if found {
		out = append([]byte(nil), e.entries[idx].value...)
	}
	e.mu.RUnlock()

	e.touch(func(s *common.Stats) {
		s.ReadCount++
		if found {
			s.BytesRead += int64(len(out))
		}
	})
	if !found {
		return nil, common.ErrKeyNotFound
	}
	return out, nil
}

// Update overwrites an existing key's value; ErrKeyNotFound if absent.
func (e *Engine) Update(key, value []byte) error {
	e.mu.Lock()
	idx := e.indexOf(key)
	if idx < 0 || e.entries[idx].deleted {
		e.mu.Unlock()
		return common.ErrKeyNotFound
	}
	e.entries[idx].value = append([]byte(nil), value...)
	e.entries[idx].seqNum = e.seq.Next()
	e.mu.Unlock()

	e.touch(func(s *common.Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(key) + len(value))
	})
	return nil
}

// Delete removes key; ErrKeyNotFound if absent. Entries are removed by
// swap-with-last to keep deletion O(1) once the index is known.
func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	idx := e.indexOf(key)
	if idx < 0 || e.entries[idx].deleted {
		e.mu.Unlock()
		return common.ErrKeyNotFound
	}
	last := len(e.entries) - 1
	e.entries[idx] = e.entries[last]
	e.entries = e.entries[:last]
	count := int64(len(e.entries))
	e.mu.Unlock()

	e.touch(func(s *common.Stats) {
		s.DeleteCount++
		s.NumKeys = count
	})
	return nil
}

// PrefixScan returns pairs whose key starts with prefix, filtering the
// table linearly (spec §4.1: unordered engines still honor prefix scans
// by a plain O(n) filter rather than declining the operation).
func (e *Engine) PrefixScan(prefix []byte, limit int) ([]common.KVPair, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []common.KVPair
	for _, en := range e.entries {
		if en.deleted {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		if len(en.key) >= len(prefix) && string(en.key[:len(prefix)]) == string(prefix) {
			out = append(out, common.KVPair{
				Key:    append([]byte(nil), en.key...),
				Value:  append([]byte(nil), en.value...),
				SeqNum: en.seqNum,
			})
		}
	}
	return out, nil
}

// Count returns the number of live keys.
func (e *Engine) Count() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.entries))
}

// Close, Sync, Compact are no-ops: the array engine is purely in-memory.
func (e *Engine) Close() error   { return nil }
func (e *Engine) Sync() error    { return nil }
func (e *Engine) Compact() error { return nil }

// Stats returns a copy of the engine's statistics.
func (e *Engine) Stats() common.Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

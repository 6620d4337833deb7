package lsm

import (
	"sync"

	"github.com/Lzww0608/ConcordKV-sub001/rbtree"
)

// MemTableEntry represents a single entry in the memtable, exposed as a
// flat struct for iteration and flush (spec §4.3.1).
type MemTableEntry struct {
	Key      string
	Value    []byte
	Sequence uint64
	Deleted  bool
}

// MemTable is an in-memory sorted structure for storing recent writes.
// It is backed by an arena rbtree.Tree[rbtree.Entry] instead of a sorted
// slice, matching the spec's pluggable-engine arena/rbtree model (spec
// §4.3.1: "backed by a red-black tree keyed on... bytes"); the slice the
// teacher used required an O(n) shift on every out-of-order insert, which
// the rbtree turns into O(log n).
type MemTable struct {
	mu      sync.RWMutex
	tree    *rbtree.Tree[rbtree.Entry]
	size    int // approximate byte size, tracked alongside the tree
	maxSize int
}

// NewMemTable creates a new memtable with the given maximum size.
func NewMemTable(maxSize int) *MemTable {
	return &MemTable{
		tree:    rbtree.NewTree[rbtree.Entry](),
		maxSize: maxSize,
	}
}

// Put inserts a key-value pair with a sequence number.
func (m *MemTable) Put(key string, value []byte, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, existed := m.tree.Get([]byte(key))
	m.tree.Upsert([]byte(key), rbtree.Entry{Value: value, SeqNum: seq, Deleted: false})
	if existed {
		m.size += len(value) - len(old.Value)
	} else {
		m.size += len(key) + len(value) + 16
	}
}

// Delete marks a key as deleted with a tombstone.
func (m *MemTable) Delete(key string, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, existed := m.tree.Get([]byte(key))
	m.tree.Upsert([]byte(key), rbtree.Entry{Value: nil, SeqNum: seq, Deleted: true})
	if existed {
		m.size -= len(old.Value)
	} else {
		m.size += len(key) + 16
	}
}

// Get retrieves a value for a key, returning value, sequence number,
// deleted flag, and found status.
func (m *MemTable) Get(key string) ([]byte, uint64, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, found := m.tree.Get([]byte(key))
	if !found {
		return nil, 0, false, false
	}
	return e.Value, e.SeqNum, e.Deleted, true
}

// Size returns the approximate size in bytes.
func (m *MemTable) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// IsFull returns true if the memtable has reached its maximum size.
func (m *MemTable) IsFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size >= m.maxSize
}

// GetAllEntries returns all entries in ascending key order for flushing
// to disk.
func (m *MemTable) GetAllEntries() []MemTableEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]MemTableEntry, 0, m.tree.Len())
	m.tree.Ascend(nil, nil, func(key []byte, value rbtree.Entry) bool {
		entries = append(entries, MemTableEntry{
			Key:      string(key),
			Value:    value.Value,
			Sequence: value.SeqNum,
			Deleted:  value.Deleted,
		})
		return true
	})
	return entries
}

// Len returns the number of entries.
func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// defaultMaxFrozen is the bounded FIFO capacity for frozen memtables
// (spec §4.3.1: "a bounded FIFO of FROZEN memtables (default capacity 5)").
const defaultMaxFrozen = 5

// MemTableManager owns one ACTIVE memtable and a bounded FIFO of FROZEN
// memtables, implementing the freeze/flush policy of spec §4.3.1: once
// ACTIVE.size >= maxSize, it is frozen, enqueued as FROZEN, and a fresh
// ACTIVE is created in its place. Reads consult ACTIVE first, then FROZEN
// newest-to-oldest.
type MemTableManager struct {
	mu         sync.RWMutex
	active     *MemTable
	frozen     []*MemTable // oldest at index 0, newest at the end
	maxSize    int
	maxFrozen  int
	autoFreeze bool
}

// NewMemTableManager creates a manager with one empty active memtable.
func NewMemTableManager(maxSize, maxFrozen int) *MemTableManager {
	if maxFrozen <= 0 {
		maxFrozen = defaultMaxFrozen
	}
	return &MemTableManager{
		active:     NewMemTable(maxSize),
		maxSize:    maxSize,
		maxFrozen:  maxFrozen,
		autoFreeze: true,
	}
}

// Put writes to ACTIVE, freezing it first if it is already full.
func (mgr *MemTableManager) Put(key string, value []byte, seq uint64) {
	mgr.mu.Lock()
	mgr.maybeFreezeLocked()
	mgr.active.Put(key, value, seq)
	mgr.mu.Unlock()
}

// Delete writes a tombstone to ACTIVE, freezing it first if already full.
func (mgr *MemTableManager) Delete(key string, seq uint64) {
	mgr.mu.Lock()
	mgr.maybeFreezeLocked()
	mgr.active.Delete(key, seq)
	mgr.mu.Unlock()
}

// maybeFreezeLocked freezes ACTIVE into FROZEN and allocates a fresh
// ACTIVE when the current one has reached maxSize. Caller holds mgr.mu.
func (mgr *MemTableManager) maybeFreezeLocked() {
	if !mgr.autoFreeze || !mgr.active.IsFull() {
		return
	}
	mgr.frozen = append(mgr.frozen, mgr.active)
	if len(mgr.frozen) > mgr.maxFrozen {
		mgr.frozen = mgr.frozen[1:]
	}
	mgr.active = NewMemTable(mgr.maxSize)
}

// Freeze unconditionally rotates ACTIVE into FROZEN (used by flush()'s
// durability fence and by explicit close-time draining), returning the
// table that was frozen, or nil if ACTIVE was empty.
func (mgr *MemTableManager) Freeze() *MemTable {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.active.Len() == 0 {
		return nil
	}
	old := mgr.active
	mgr.frozen = append(mgr.frozen, old)
	if len(mgr.frozen) > mgr.maxFrozen {
		mgr.frozen = mgr.frozen[1:]
	}
	mgr.active = NewMemTable(mgr.maxSize)
	return old
}

// Get consults ACTIVE, then FROZEN newest-to-oldest, returning the first
// match (which carries the highest sequence number by construction: ACTIVE
// is always newer than any FROZEN table, and FROZEN is searched in
// reverse-insertion order).
func (mgr *MemTableManager) Get(key string) ([]byte, uint64, bool, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	if v, seq, deleted, found := mgr.active.Get(key); found {
		return v, seq, deleted, true
	}
	for i := len(mgr.frozen) - 1; i >= 0; i-- {
		if v, seq, deleted, found := mgr.frozen[i].Get(key); found {
			return v, seq, deleted, true
		}
	}
	return nil, 0, false, false
}

// ShouldFlush reports whether FROZEN has reached half its capacity, the
// manager's signal to the scheduler that an L0 flush task should be
// enqueued (spec §4.3.1).
func (mgr *MemTableManager) ShouldFlush() bool {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.frozen) >= (mgr.maxFrozen+1)/2
}

// PopOldestFrozen removes and returns the oldest frozen memtable for the
// flush worker to drain, or nil if none are pending.
func (mgr *MemTableManager) PopOldestFrozen() *MemTable {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if len(mgr.frozen) == 0 {
		return nil
	}
	oldest := mgr.frozen[0]
	mgr.frozen = mgr.frozen[1:]
	return oldest
}

// FrozenCount reports the number of frozen memtables awaiting flush.
func (mgr *MemTableManager) FrozenCount() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.frozen)
}

// ActiveSize returns the approximate byte size of ACTIVE.
func (mgr *MemTableManager) ActiveSize() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.active.Size()
}

// ActiveLen returns the number of entries in ACTIVE.
func (mgr *MemTableManager) ActiveLen() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.active.Len()
}

// snapshotNewestFirst returns ACTIVE followed by FROZEN newest-to-oldest,
// for Scan()'s merge order (spec §4.5).
func (mgr *MemTableManager) snapshotNewestFirst() []*MemTable {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	out := make([]*MemTable, 0, 1+len(mgr.frozen))
	out = append(out, mgr.active)
	for i := len(mgr.frozen) - 1; i >= 0; i-- {
		out = append(out, mgr.frozen[i])
	}
	return out
}

package lsm

import (
	"container/heap"
	"sort"
)

// Iterator provides sequential access to key-value pairs in sorted order
type Iterator interface {
	// SeekToFirst positions the iterator at the first key
	SeekToFirst()
	// Valid returns true if the iterator is positioned at a valid entry
	Valid() bool
	// Next advances to the next entry
	Next()
	// Key returns the current key
	Key() string
	// Value returns the current value
	Value() []byte
	// Error returns any error that occurred
	Error() error
}

// MemTableIterator iterates over a flat, pre-sorted slice of entries. It
// backs both memtable scans and SSTable scans (spec §4.5's merged-iterator
// read path makes no distinction between the two once entries are sorted).
type MemTableIterator struct {
	entries []MemTableEntry
	index   int
}

// NewMemTableIterator creates an iterator for a memtable.
func NewMemTableIterator(memtable *MemTable) *MemTableIterator {
	return newEntriesIterator(memtable.GetAllEntries())
}

// NewSSTableScanIterator creates an iterator over every live entry in an
// on-disk SSTable, for use in Scan() alongside the memtable iterators
// (spec §4.5, fixing the prior "SSTable data never appears in Scan"
// gap).
func NewSSTableScanIterator(sst *SSTable) (*MemTableIterator, error) {
	entries, err := sst.AllEntries()
	if err != nil {
		return nil, err
	}
	return newEntriesIterator(entries), nil
}

func newEntriesIterator(entries []MemTableEntry) *MemTableIterator {
	return &MemTableIterator{entries: entries, index: -1}
}

func (it *MemTableIterator) SeekToFirst() {
	it.index = -1
	it.Next()
}

func (it *MemTableIterator) Valid() bool {
	return it.index >= 0 && it.index < len(it.entries) && !it.entries[it.index].Deleted
}

func (it *MemTableIterator) Next() {
	it.index++
	// Skip deleted entries
	for it.index < len(it.entries) && it.entries[it.index].Deleted {
		it.index++
	}
}

func (it *MemTableIterator) Key() string {
	if !it.Valid() {
		return ""
	}
	return it.entries[it.index].Key
}

func (it *MemTableIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.entries[it.index].Value
}

func (it *MemTableIterator) Error() error {
	return nil
}

// MergingIteratorEntry represents an entry in the merging iterator heap
type MergingIteratorEntry struct {
	key      string
	value    []byte
	sequence uint64
	iter     Iterator
	priority int // Lower priority = checked first (memtable > L0 > L1 > L2)
}

// MergingIteratorHeap implements a min-heap for merging multiple iterators
type MergingIteratorHeap []MergingIteratorEntry

func (h MergingIteratorHeap) Len() int { return len(h) }
func (h MergingIteratorHeap) Less(i, j int) bool {
	// First compare by key
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	// If keys are equal, prefer lower priority (newer data)
	return h[i].priority < h[j].priority
}
func (h MergingIteratorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *MergingIteratorHeap) Push(x interface{}) { *h = append(*h, x.(MergingIteratorEntry)) }
func (h *MergingIteratorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// MergingIterator merges multiple sorted iterators
type MergingIterator struct {
	iterators []Iterator
	priorities []int
	heap      *MergingIteratorHeap
	currentKey string
	currentValue []byte
	err error
}

// NewMergingIterator creates a merging iterator from multiple iterators
// Iterators should be ordered by priority (0 = highest priority, checked first)
func NewMergingIterator(iterators []Iterator, priorities []int) *MergingIterator {
	it := &MergingIterator{
		iterators:  iterators,
		priorities: priorities,
		heap:       &MergingIteratorHeap{},
	}

	heap.Init(it.heap)
	return it
}

func (it *MergingIterator) SeekToFirst() {
	// Initialize heap with first entry from each iterator
	*it.heap = (*it.heap)[:0]
	heap.Init(it.heap)

	for i, iter := range it.iterators {
		iter.SeekToFirst()
		if iter.Valid() {
			heap.Push(it.heap, MergingIteratorEntry{
				key:      iter.Key(),
				value:    iter.Value(),
				iter:     iter,
				priority: it.priorities[i],
			})
		}
	}

	// Advance to first entry
	it.Next()
}

func (it *MergingIterator) Valid() bool {
	return it.currentKey != ""
}

func (it *MergingIterator) Next() {
	if it.heap.Len() == 0 {
		it.currentKey = ""
		it.currentValue = nil
		return
	}

	// Get smallest entry
	entry := heap.Pop(it.heap).(MergingIteratorEntry)
	it.currentKey = entry.key
	it.currentValue = entry.value

	// Advance the iterator that produced this entry
	entry.iter.Next()
	if entry.iter.Valid() {
		heap.Push(it.heap, MergingIteratorEntry{
			key:      entry.iter.Key(),
			value:    entry.iter.Value(),
			iter:     entry.iter,
			priority: entry.priority,
		})
	}

	// Skip duplicate keys (keep only the first, which has highest priority)
	for it.heap.Len() > 0 {
		peek := (*it.heap)[0]
		if peek.key != it.currentKey {
			break
		}

		// Duplicate key, skip it
		entry := heap.Pop(it.heap).(MergingIteratorEntry)
		entry.iter.Next()
		if entry.iter.Valid() {
			heap.Push(it.heap, MergingIteratorEntry{
				key:      entry.iter.Key(),
				value:    entry.iter.Value(),
				iter:     entry.iter,
				priority: entry.priority,
			})
		}
	}
}

func (it *MergingIterator) Key() string {
	return it.currentKey
}

func (it *MergingIterator) Value() []byte {
	return it.currentValue
}

func (it *MergingIterator) Error() error {
	return it.err
}

// Scan returns an iterator over the key range [start, end].
// If start is empty, starts from the beginning.
// If end is empty, continues to the end.
//
// Entries are merged from newest to oldest: the active memtable, then
// frozen memtables newest-first, then L0 SSTables newest-first, then L1
// through the bottom level (spec §4.3.1, §4.5).
func (lsm *LSM) Scan(start, end string) Iterator {
	var iterators []Iterator
	var priorities []int
	priority := 0

	memtables := lsm.memtables.snapshotNewestFirst()
	for _, mt := range memtables {
		iterators = append(iterators, NewMemTableIterator(mt))
		priorities = append(priorities, priority)
		priority++
	}

	for level := 0; level < NumLevels; level++ {
		sstables := lsm.levels.GetAllSSTables(level)
		if level == 0 {
			sort.Slice(sstables, func(i, j int) bool {
				return sstables[i].FileNum() > sstables[j].FileNum()
			})
		}
		for _, sst := range sstables {
			if !sst.Overlaps(start, end) {
				continue
			}
			it, err := NewSSTableScanIterator(sst)
			if err != nil {
				continue
			}
			iterators = append(iterators, it)
			priorities = append(priorities, priority)
			priority++
		}
	}

	mergingIter := NewMergingIterator(iterators, priorities)
	mergingIter.SeekToFirst()

	return newBoundedIterator(mergingIter, start, end)
}

// boundedIterator wraps another Iterator, stopping once the key range
// bound is exceeded and skipping entries before the range start.
type boundedIterator struct {
	inner      Iterator
	start, end string
	done       bool
}

func newBoundedIterator(inner Iterator, start, end string) *boundedIterator {
	b := &boundedIterator{inner: inner, start: start, end: end}
	b.skipToStart()
	return b
}

func (b *boundedIterator) skipToStart() {
	for b.start != "" && b.inner.Valid() && b.inner.Key() < b.start {
		b.inner.Next()
	}
	b.checkBound()
}

func (b *boundedIterator) checkBound() {
	if b.inner.Valid() && b.end != "" && b.inner.Key() > b.end {
		b.done = true
	}
}

func (b *boundedIterator) SeekToFirst() {
	b.inner.SeekToFirst()
	b.done = false
	b.skipToStart()
}

func (b *boundedIterator) Valid() bool { return !b.done && b.inner.Valid() }
func (b *boundedIterator) Next() {
	b.inner.Next()
	b.checkBound()
}
func (b *boundedIterator) Key() string   { return b.inner.Key() }
func (b *boundedIterator) Value() []byte { return b.inner.Value() }
func (b *boundedIterator) Error() error  { return b.inner.Error() }

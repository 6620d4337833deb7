package lsm

import (
	"container/heap"
	"fmt"
	"log"
	"path/filepath"
)

// CompactionEntry represents an entry during compaction.
type CompactionEntry struct {
	Key      string
	Value    []byte
	Sequence uint64
	Deleted  bool
	sstIndex int // Which SSTable this came from
}

// CompactionHeap implements a min-heap for k-way merge
type CompactionHeap []CompactionEntry

func (h CompactionHeap) Len() int { return len(h) }
func (h CompactionHeap) Less(i, j int) bool {
	if h[i].Key != h[j].Key {
		return h[i].Key < h[j].Key
	}
	// If keys are equal, prefer higher sequence number (newer)
	return h[i].Sequence > h[j].Sequence
}
func (h CompactionHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *CompactionHeap) Push(x interface{}) { *h = append(*h, x.(CompactionEntry)) }
func (h *CompactionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// SSTableIterator iterates over every entry in an SSTable, block by block,
// in ascending key order, carrying each entry's real sequence number and
// tombstone flag read off disk.
type SSTableIterator struct {
	sst      *SSTable
	blockIdx int
	entryIdx int
	entries  []blockEntry
}

// NewSSTableIterator creates an iterator for an SSTable.
func NewSSTableIterator(sst *SSTable, sstIndex int) (*SSTableIterator, error) {
	it := &SSTableIterator{sst: sst, blockIdx: 0}
	if len(sst.index) > 0 {
		if err := it.loadBlock(0); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// loadBlock decodes block blockIdx into it.entries.
func (it *SSTableIterator) loadBlock(blockIdx int) error {
	if blockIdx >= len(it.sst.index) {
		it.entries = nil
		return nil
	}
	entries, err := it.sst.decodeBlock(it.sst.index[blockIdx])
	if err != nil {
		return err
	}
	it.entries = entries
	it.blockIdx = blockIdx
	it.entryIdx = 0
	return nil
}

// Next advances to the next entry, returning ok=false once every block has
// been exhausted.
func (it *SSTableIterator) Next() (CompactionEntry, bool) {
	for it.entryIdx >= len(it.entries) {
		it.blockIdx++
		if it.blockIdx >= len(it.sst.index) {
			return CompactionEntry{}, false
		}
		if err := it.loadBlock(it.blockIdx); err != nil {
			return CompactionEntry{}, false
		}
	}

	e := it.entries[it.entryIdx]
	it.entryIdx++
	return CompactionEntry{Key: e.Key, Value: e.Value, Sequence: e.SeqNum, Deleted: e.Deleted}, true
}

// CompactL0ToL1 merges all L0 SSTables into L1.
// Returns: new L1 files, old L1 files that were compacted, error.
func CompactL0ToL1(dataDir string, l0Files, l1Files []*SSTable, nextFileNum *uint64, compression CompressionType) ([]*SSTable, []*SSTable, error) {
	if len(l0Files) == 0 {
		return nil, nil, nil
	}

	minKey := l0Files[0].MinKey()
	maxKey := l0Files[0].MaxKey()
	for _, sst := range l0Files {
		if sst.MinKey() < minKey {
			minKey = sst.MinKey()
		}
		if sst.MaxKey() > maxKey {
			maxKey = sst.MaxKey()
		}
	}

	var overlappingL1 []*SSTable
	for _, sst := range l1Files {
		if sst.Overlaps(minKey, maxKey) {
			overlappingL1 = append(overlappingL1, sst)
		}
	}

	allFiles := append(append([]*SSTable{}, l0Files...), overlappingL1...)
	newFiles, err := mergeFiles(dataDir, allFiles, 1, nextFileNum, compression)
	if err != nil {
		return nil, nil, err
	}

	return newFiles, overlappingL1, nil
}

// CompactLnToLn1 compacts files from level n to level n+1.
// Returns: new files at target level, old files from target level that were compacted, error.
func CompactLnToLn1(dataDir string, lnFiles, ln1Files []*SSTable, targetLevel int, nextFileNum *uint64, compression CompressionType) ([]*SSTable, []*SSTable, error) {
	if len(lnFiles) == 0 {
		return nil, nil, nil
	}

	minKey := lnFiles[0].MinKey()
	maxKey := lnFiles[0].MaxKey()
	for _, sst := range lnFiles {
		if sst.MinKey() < minKey {
			minKey = sst.MinKey()
		}
		if sst.MaxKey() > maxKey {
			maxKey = sst.MaxKey()
		}
	}

	var overlapping []*SSTable
	for _, sst := range ln1Files {
		if sst.Overlaps(minKey, maxKey) {
			overlapping = append(overlapping, sst)
		}
	}

	allFiles := append(append([]*SSTable{}, lnFiles...), overlapping...)
	newFiles, err := mergeFiles(dataDir, allFiles, targetLevel, nextFileNum, compression)
	if err != nil {
		return nil, nil, err
	}

	return newFiles, overlapping, nil
}

// mergeFiles performs a k-way merge of multiple SSTables, dropping
// superseded versions and (only at the bottom level) tombstones, writing
// the result as one or more new SSTables at targetLevel.
func mergeFiles(dataDir string, sstables []*SSTable, targetLevel int, nextFileNum *uint64, compression CompressionType) ([]*SSTable, error) {
	iterators := make([]*SSTableIterator, len(sstables))
	for i, sst := range sstables {
		it, err := NewSSTableIterator(sst, i)
		if err != nil {
			return nil, err
		}
		iterators[i] = it
	}

	h := &CompactionHeap{}
	heap.Init(h)

	for i, it := range iterators {
		if entry, ok := it.Next(); ok {
			entry.sstIndex = i
			heap.Push(h, entry)
		}
	}

	var newSSTables []*SSTable
	var builder *SSTableBuilder
	var currentFileNum uint64
	var entriesInFile int
	var lastKey string
	haveLast := false
	const maxEntriesPerFile = 100000 // ~4MB with 40-byte entries

	for h.Len() > 0 {
		entry := heap.Pop(h).(CompactionEntry)

		it := iterators[entry.sstIndex]
		if nextEntry, ok := it.Next(); ok {
			nextEntry.sstIndex = entry.sstIndex
			heap.Push(h, nextEntry)
		}

		// Skip duplicates (keep only the first occurrence, which has the
		// highest sequence number per CompactionHeap.Less).
		if haveLast && entry.Key == lastKey {
			continue
		}
		lastKey, haveLast = entry.Key, true

		// Tombstones are only safe to drop once compacted into the bottom
		// level, since no older version can exist below it (spec §4.3.4).
		if targetLevel == BottomLevel && entry.Deleted {
			continue
		}

		if builder == nil {
			currentFileNum = *nextFileNum
			*nextFileNum++
			path := filepath.Join(dataDir, fmt.Sprintf("L%d-%06d.sst", targetLevel, currentFileNum))
			var err error
			builder, err = NewSSTableBuilderWithCompression(path, maxEntriesPerFile, compression)
			if err != nil {
				return nil, err
			}
			entriesInFile = 0
		}

		if err := builder.Add(entry.Key, entry.Value, entry.Sequence, entry.Deleted); err != nil {
			builder.Abort()
			return nil, err
		}
		entriesInFile++

		if entriesInFile >= maxEntriesPerFile {
			if err := builder.Finish(); err != nil {
				return nil, err
			}
			path := filepath.Join(dataDir, fmt.Sprintf("L%d-%06d.sst", targetLevel, currentFileNum))
			sst, err := OpenSSTable(path, targetLevel, currentFileNum, compression)
			if err != nil {
				return nil, err
			}
			newSSTables = append(newSSTables, sst)
			builder = nil
		}
	}

	if builder != nil {
		if err := builder.Finish(); err != nil {
			return nil, err
		}
		path := filepath.Join(dataDir, fmt.Sprintf("L%d-%06d.sst", targetLevel, currentFileNum))
		sst, err := OpenSSTable(path, targetLevel, currentFileNum, compression)
		if err != nil {
			return nil, err
		}
		newSSTables = append(newSSTables, sst)
	}

	return newSSTables, nil
}

// DeleteSSTables deletes a list of SSTables from disk.
func DeleteSSTables(sstables []*SSTable) error {
	for _, sst := range sstables {
		if err := sst.Remove(); err != nil {
			log.Printf("Warning: failed to delete SSTable %s: %v", sst.Path(), err)
		}
	}
	return nil
}

package lsm

import "github.com/Lzww0608/ConcordKV-sub001/common"

// Adapter wraps LSM to implement common.StorageEngine.
// LSM uses string keys internally; the interface expects []byte keys.
type Adapter struct {
	lsm *LSM
}

// NewAdapter creates a new adapter for LSM.
func NewAdapter(config Config) (*Adapter, error) {
	lsm, err := New(config)
	if err != nil {
		return nil, err
	}
	return &Adapter{lsm: lsm}, nil
}

// Put implements common.StorageEngine.
func (a *Adapter) Put(key, value []byte) error {
	return a.lsm.Put(string(key), value)
}

// Get implements common.StorageEngine.
func (a *Adapter) Get(key []byte) ([]byte, error) {
	value, found, err := a.lsm.Get(string(key))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrKeyNotFound
	}
	return value, nil
}

// Update overwrites key's value, implementing common.Updater. LSM has no
// separate update path; Put already upserts (spec §4.3.1's "newest
// sequence number wins").
func (a *Adapter) Update(key, value []byte) error {
	if _, err := a.Get(key); err != nil {
		return err
	}
	return a.Put(key, value)
}

// Delete implements common.StorageEngine by writing a tombstone. It does
// not check whether the key exists and never returns ErrKeyNotFound.
func (a *Adapter) Delete(key []byte) error {
	return a.lsm.Delete(string(key))
}

// Close implements common.StorageEngine.
func (a *Adapter) Close() error {
	return a.lsm.Close()
}

// Sync implements common.StorageEngine.
func (a *Adapter) Sync() error {
	return a.lsm.Sync()
}

// Count implements common.Counter by walking the merged scan iterator,
// since live keys can be shadowed across memtables and levels (spec
// §4.3.1).
func (a *Adapter) Count() uint64 {
	it := a.lsm.Scan("", "")
	var n uint64
	for it.Valid() {
		n++
		it.Next()
	}
	return n
}

// RangeScan implements common.RangeScanner over the merged memtable/SSTable
// iterator (spec §4.5). lsm.Scan's boundedIterator is inclusive on both
// ends, so exclusive boundaries are enforced here by skipping the
// boundary key itself.
func (a *Adapter) RangeScan(start, end []byte, startInclusive, endInclusive bool, limit int) ([]common.KVPair, error) {
	it := a.lsm.Scan(string(start), string(end))
	var out []common.KVPair
	for it.Valid() {
		if limit > 0 && len(out) >= limit {
			break
		}
		key := it.Key()
		if !startInclusive && len(start) > 0 && key == string(start) {
			it.Next()
			continue
		}
		if !endInclusive && len(end) > 0 && key == string(end) {
			break
		}
		out = append(out, common.KVPair{Key: []byte(key), Value: append([]byte(nil), it.Value()...)})
		it.Next()
	}
	return out, it.Error()
}

// PrefixScan implements common.PrefixScanner, using the next-key upper
// bound derived from the prefix to narrow the underlying range scan (spec
// §4.1: "ordered engines compute an upper bound and range-scan").
func (a *Adapter) PrefixScan(prefix []byte, limit int) ([]common.KVPair, error) {
	bound, ok := common.NextKeyUpperBound(prefix)
	end := ""
	if ok {
		end = string(bound)
	}
	it := a.lsm.Scan(string(prefix), end)
	var out []common.KVPair
	for it.Valid() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if ok && it.Key() >= end {
			break
		}
		out = append(out, common.KVPair{Key: []byte(it.Key()), Value: append([]byte(nil), it.Value()...)})
		it.Next()
	}
	return out, it.Error()
}

// Stats implements common.StorageEngine.
func (a *Adapter) Stats() common.Stats {
	totalFiles := a.lsm.levels.GetTotalFiles()
	totalSize := a.lsm.levels.GetTotalSize()
	activeSegSize := int64(a.lsm.memtables.ActiveSize())

	writeCount, readCount, compactCount, flushCount := 0, 0, 0, 0
	wc, rc, fc, cc := a.lsm.Stats()
	writeCount, readCount, compactCount, flushCount = int(wc), int(rc), int(cc), int(fc)

	numKeys := int64(a.lsm.memtables.ActiveLen())
	numKeys += int64(totalFiles * 10000) // rough per-file estimate; an exact count needs a full merge scan

	writeAmp := 1.0
	if flushCount > 0 {
		writeAmp = 1.5
		if compactCount > 0 {
			writeAmp += (float64(compactCount) / float64(flushCount)) * 0.5
		}
		if writeAmp > 5.0 {
			writeAmp = 5.0
		}
	}

	spaceAmp := 1.0
	if totalFiles > 0 {
		l0Files := a.lsm.levels.NumFiles(0)
		if l0Files > 2 {
			spaceAmp = 1.5 + float64(l0Files)*0.1
		} else {
			spaceAmp = 1.2
		}
		if spaceAmp > 3.0 {
			spaceAmp = 3.0
		}
	}

	return common.Stats{
		NumKeys:       numKeys,
		NumSegments:   totalFiles + 1, // +1 for active memtable
		ActiveSegSize: activeSegSize,
		TotalDiskSize: totalSize,
		WriteCount:    int64(writeCount),
		ReadCount:     int64(readCount),
		CompactCount:  int64(compactCount),
		WriteAmp:      writeAmp,
		SpaceAmp:      spaceAmp,
	}
}

// Compact implements common.StorageEngine by submitting a manual, urgent
// L0 compaction task and waiting for the scheduler to pick it up. LSM
// already compacts automatically in the background; this forces an
// out-of-band pass (spec §4.3.4: MANUAL task type).
func (a *Adapter) Compact() error {
	if !a.lsm.levels.ShouldCompact(0) {
		return nil
	}
	done := make(chan error, 1)
	a.lsm.scheduler.submit(&task{kind: TaskManual, priority: PriorityUrgent, run: func() error {
		err := a.lsm.runCompactionTask(0)
		done <- err
		return err
	}})
	return <-done
}

// Scan returns an iterator for range queries (LSM-specific feature).
func (a *Adapter) Scan(start, end string) Iterator {
	return a.lsm.Scan(start, end)
}

// iteratorAdapter wraps the package's lsm.Iterator (SeekToFirst/Valid/Next
// with a string Key()) into common.Iterator's pull shape (Next-then-Key,
// []byte Key()), following the pattern rbtree.Engine and btree.Tree use
// for their own NewIterator.
type iteratorAdapter struct {
	inner   Iterator
	started bool
}

func (it *iteratorAdapter) Next() bool {
	if !it.started {
		it.started = true
		it.inner.SeekToFirst()
	} else {
		it.inner.Next()
	}
	return it.inner.Valid()
}
func (it *iteratorAdapter) Key() []byte   { return []byte(it.inner.Key()) }
func (it *iteratorAdapter) Value() []byte { return it.inner.Value() }
func (it *iteratorAdapter) Error() error  { return it.inner.Error() }
func (it *iteratorAdapter) Close() error  { return nil }

// NewIterator implements common.IteratorFactory with an ascending cursor
// over the whole engine (memtables plus every level's SSTables), built from
// entries copied by Scan when the cursor is created.
func (a *Adapter) NewIterator() (common.Iterator, error) {
	return &iteratorAdapter{inner: a.lsm.Scan("", "")}, nil
}

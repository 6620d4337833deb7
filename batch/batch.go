// Package batch implements the spec's synchronous batch writer (spec
// §4.6): accumulate put/delete entries under per-batch caps, optionally
// deduplicate or sort them, append surviving entries to a write-ahead log,
// then apply them to an engine with either atomic or best-effort commit
// semantics.
//
// Grounded on the WAL-then-apply ordering already used by lsm.LSM.Put
// (append to wal.Writer before mutating the memtable). The soft timeout_ms
// budget is a deadline that Commit checks before applying each entry.
package batch

import (
	"sort"
	"time"

	"github.com/Lzww0608/ConcordKV-sub001/common"
	"github.com/Lzww0608/ConcordKV-sub001/wal"
)

// Op identifies a batch entry's operation.
type Op int

const (
	OpPut Op = iota
	OpDelete
)

// Entry is one operation accumulated in a batch (spec §3: "Batch").
type Entry struct {
	Op     Op
	Key    []byte
	Value  []byte
	SeqNum uint64
}

// Config controls batch caps and commit behavior (spec §4.6).
type Config struct {
	MaxBatchSize   int   // max entry count; 0 means unbounded
	MaxBatchMemory int64 // max accumulated key+value bytes; 0 means unbounded

	EnableDeduplication bool // keep only the highest-seq_num entry per key
	EnableSorting       bool // sort by key when dedup is off

	EnableWAL bool // append surviving entries to wal before applying
	SyncWAL   bool // fsync once after the WAL append run
	Recovery  bool // recovery mode suppresses WAL writes (spec §4.3.5)

	AtomicCommit bool // first failure aborts the remainder
	TimeoutMs    int  // soft commit budget; 0 disables the check
}

// DefaultConfig returns the default batch settings: dedup on, WAL on,
// atomic commit, with caps of 10000 entries and 4 MiB.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:        10000,
		MaxBatchMemory:       4 * 1024 * 1024,
		EnableDeduplication: true,
		EnableWAL:           true,
		AtomicCommit:        true,
	}
}

// Result is the outcome of Commit (spec §4.6 step 5).
type Result struct {
	Committed       int
	Failed          int
	CommitTimeUs    int64
	WALWrites       int
	FirstErrorCode  common.Kind
	FirstErrorIndex int
	TimedOut        bool
}

// Engine is the subset of common.StorageEngine a batch applies entries
// against; Update is deliberately excluded since the spec's batch
// vocabulary is Put/Delete only (spec §3).
type Engine interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Batch accumulates entries for one atomic-or-best-effort commit.
type Batch struct {
	config Config
	engine Engine
	wal    *wal.Writer // nil disables WAL participation regardless of config
	seq    *common.MonotonicSeq

	entries []Entry
	bytes   int64
	done    bool // true after Commit or Cancel; further mutation is rejected
}

// New creates a batch writer applying to engine. walWriter may be nil for
// engines with no durability story of their own (e.g. the array or rbtree
// engines); seq supplies each entry's sequence number.
func New(engine Engine, walWriter *wal.Writer, seq *common.MonotonicSeq, config Config) *Batch {
	return &Batch{config: config, engine: engine, wal: walWriter, seq: seq}
}

func (b *Batch) sizeOf(key, value []byte) int64 {
	return int64(len(key) + len(value))
}

func (b *Batch) checkCaps(add int64) error {
	if b.done {
		return common.NewError(common.KindInvalidState, "batch already committed or cancelled")
	}
	if b.config.MaxBatchSize > 0 && len(b.entries) >= b.config.MaxBatchSize {
		return common.ErrBatchFull
	}
	if b.config.MaxBatchMemory > 0 && b.bytes+add > b.config.MaxBatchMemory {
		return common.ErrBatchTooLarge
	}
	return nil
}

// Put appends a PUT entry.
func (b *Batch) Put(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	add := b.sizeOf(key, value)
	if err := b.checkCaps(add); err != nil {
		return err
	}
	b.entries = append(b.entries, Entry{
		Op:     OpPut,
		Key:    append([]byte(nil), key...),
		Value:  append([]byte(nil), value...),
		SeqNum: b.seq.Next(),
	})
	b.bytes += add
	return nil
}

// Delete appends a DELETE entry.
func (b *Batch) Delete(key []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	if err := b.checkCaps(b.sizeOf(key, nil)); err != nil {
		return err
	}
	b.entries = append(b.entries, Entry{
		Op:     OpDelete,
		Key:    append([]byte(nil), key...),
		SeqNum: b.seq.Next(),
	})
	b.bytes += int64(len(key))
	return nil
}

// Len returns the number of entries currently accumulated.
func (b *Batch) Len() int { return len(b.entries) }

// Cancel discards every accumulated entry without applying them.
func (b *Batch) Cancel() {
	b.entries = nil
	b.bytes = 0
	b.done = true
}

// dedupe implements spec §4.6 step 1: stable-sort by (key, seq_num ASC),
// then for each run of identical keys keep only the last (highest
// seq_num) entry. Entries are appended in strictly increasing seq_num
// order already, so a stable sort by key alone preserves the ASC seq_num
// tiebreak within a run.
func dedupe(entries []Entry) []Entry {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return common.CompareKeys(sorted[i].Key, sorted[j].Key) < 0
	})
	out := sorted[:0:0]
	for i := 0; i < len(sorted); i++ {
		if i+1 < len(sorted) && string(sorted[i].Key) == string(sorted[i+1].Key) {
			continue // a later entry for this key exists; drop this one
		}
		out = append(out, sorted[i])
	}
	return out
}

func sortByKey(entries []Entry) []Entry {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return common.CompareKeys(sorted[i].Key, sorted[j].Key) < 0
	})
	return sorted
}

func (e Entry) toWALRecord() wal.Record {
	r := wal.Record{SeqNum: e.SeqNum, TimestampUs: common.NowMicros(), Key: e.Key}
	if e.Op == OpDelete {
		r.Type = wal.RecordDelete
	} else {
		r.Type = wal.RecordPut
		r.Value = e.Value
	}
	return r
}

// Commit applies every surviving entry per spec §4.6's five-step
// algorithm. The batch is unusable after Commit returns; start a new one
// for further writes.
func (b *Batch) Commit() (*Result, error) {
	if b.done {
		return nil, common.NewError(common.KindInvalidState, "batch already committed or cancelled")
	}
	b.done = true
	start := time.Now()

	working := b.entries
	if b.config.EnableDeduplication {
		working = dedupe(working)
	} else if b.config.EnableSorting {
		working = sortByKey(working)
	}

	res := &Result{FirstErrorIndex: -1}

	var deadline time.Time
	if b.config.TimeoutMs > 0 {
		deadline = start.Add(time.Duration(b.config.TimeoutMs) * time.Millisecond)
	}

	if b.wal != nil && b.config.EnableWAL && !b.config.Recovery {
		for _, e := range working {
			if err := b.wal.Append(e.toWALRecord()); err != nil {
				return nil, common.WrapError(common.KindIOError, "batch: wal append", err)
			}
			res.WALWrites++
		}
		if b.config.SyncWAL {
			if err := b.wal.Sync(); err != nil {
				return nil, common.WrapError(common.KindIOError, "batch: wal sync", err)
			}
		}
	}

	for i, e := range working {
		if !deadline.IsZero() && time.Now().After(deadline) {
			res.TimedOut = true
			break
		}
		var err error
		if e.Op == OpDelete {
			err = b.engine.Delete(e.Key)
		} else {
			err = b.engine.Put(e.Key, e.Value)
		}
		if err != nil {
			res.Failed++
			if res.FirstErrorIndex < 0 {
				res.FirstErrorIndex = i
				res.FirstErrorCode = common.ErrorKind(err)
			}
			if b.config.AtomicCommit {
				break
			}
			continue
		}
		res.Committed++
	}

	res.CommitTimeUs = time.Since(start).Microseconds()
	if res.TimedOut {
		return res, common.ErrTimeout
	}
	return res, nil
}

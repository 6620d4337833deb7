// Package hashengine implements the spec's "Hash engine": a bucket array
// with chaining that promotes a bucket to a per-bucket red-black tree once
// it collides past a small threshold (spec table: "Bucket array with
// chaining -> per-bucket rbtree at overflow"). It is grounded on the
// teacher's hashindex package for its log-structured durability story
// (segment.go's append/recover/compact shape), generalized to persist
// through the shared wal package instead of a private segment format, and
// on hashindex.shard.go's fnv-hashed sharded map for the bucket-indexing
// idea, swapped here for xxhash (spec §9 grounding: cespare/xxhash/v2 is
// already used as the bloom-filter and segment-lock hash elsewhere in this
// module, so the hash engine reuses the same family instead of adding a
// second hash dependency).
package hashengine

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/Lzww0608/ConcordKV-sub001/common"
	"github.com/Lzww0608/ConcordKV-sub001/wal"
)

// Config configures a hash engine instance.
type Config struct {
	DataDir         string // empty means purely in-memory, no WAL
	NumBuckets      int    // rounded up to a power of two; default 1024
	SyncOnWrite     bool
	MaxSegmentBytes int64
	Logger          *zap.Logger
}

// DefaultConfig returns sane defaults for a durable, on-disk instance.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:         dataDir,
		NumBuckets:      1024,
		SyncOnWrite:     false,
		MaxSegmentBytes: 4 * 1024 * 1024,
	}
}

// Engine is the bucket-array hash storage engine.
type Engine struct {
	buckets []*bucket
	mask    uint64
	seq     *common.MonotonicSeq
	log     *zap.Logger
	writer  *wal.Writer // nil when running purely in-memory

	liveKeys atomic.Int64
	stats    common.Stats
	statsMu  sync.Mutex
	closed   atomic.Bool
}

// New creates a hash engine, replaying any existing WAL in cfg.DataDir to
// restore bucket state and the sequence-number source (spec §4.3.5's
// recovery model, reused here since the hash engine shares the WAL
// package's durability contract with the LSM).
func New(cfg Config) (*Engine, error) {
	if cfg.NumBuckets <= 0 {
		cfg.NumBuckets = 1024
	}
	n := nextPowerOfTwo(cfg.NumBuckets)
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		buckets: make([]*bucket, n),
		mask:    uint64(n - 1),
		seq:     common.NewMonotonicSeq(0),
		log:     log,
	}
	for i := range e.buckets {
		e.buckets[i] = &bucket{}
	}

	if cfg.DataDir != "" {
		walDir := filepath.Join(cfg.DataDir, "wal")
		if err := e.recover(walDir); err != nil {
			return nil, err
		}
		w, err := wal.NewWriter(walDir, cfg.MaxSegmentBytes, cfg.SyncOnWrite, log)
		if err != nil {
			return nil, err
		}
		e.writer = w
	}

	return e, nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (e *Engine) bucketFor(key []byte) *bucket {
	h := xxhash.Sum64(key)
	return e.buckets[h&e.mask]
}

func (e *Engine) recover(walDir string) error {
	return wal.ReplayAll(walDir, e.log, func(r wal.Record) error {
		switch r.Type {
		case wal.RecordPut:
			b := e.bucketFor(r.Key)
			if b.put(append([]byte(nil), r.Key...), append([]byte(nil), r.Value...), r.SeqNum) {
				e.liveKeys.Add(1)
			}
		case wal.RecordDelete:
			b := e.bucketFor(r.Key)
			if b.delete(r.Key, r.SeqNum) {
				e.liveKeys.Add(-1)
			}
		}
		if r.SeqNum > e.seq.Current() {
			e.seq.Reset(r.SeqNum)
		}
		return nil
	})
}

func (e *Engine) touch(fn func(*common.Stats)) {
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
	if e.closed.Load() {
		return common.ErrClosed
	}

	seqNum := e.seq.Next()
	if e.writer != nil {
		if err := e.writer.Append(wal.Record{
			Type:        wal.RecordPut,
			SeqNum:      seqNum,
			TimestampUs: common.NowMicros(),
			Key:         key,
			Value:       value,
		}); err != nil {
			return err
		}
	}

	b := e.bucketFor(key)
	if b.put(append([]byte(nil), key...), append([]byte(nil), value...), seqNum) {
		e.liveKeys.Add(1)
	}

	e.touch(func(s *common.Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(key) + len(value))
		s.NumKeys = e.liveKeys.Load()
	})
	return nil
}

// Get returns key's value or ErrKeyNotFound.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, common.ErrClosed
	}
	b := e.bucketFor(key)
	value, _, deleted, found := b.get(key)

	e.touch(func(s *common.Stats) {
		s.ReadCount++
		if found && !deleted {
			s.BytesRead += int64(len(value))
		}
	})
	if !found || deleted {
		return nil, common.ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Update overwrites key's value, returning ErrKeyNotFound if absent.
func (e *Engine) Update(key, value []byte) error {
	if e.closed.Load() {
		return common.ErrClosed
	}
	b := e.bucketFor(key)
	_, _, deleted, found := b.get(key)
	if !found || deleted {
		return common.ErrKeyNotFound
	}
	return e.Put(key, value)
}

// Delete removes key, returning ErrKeyNotFound if absent.
func (e *Engine) Delete(key []byte) error {
	if e.closed.Load() {
		return common.ErrClosed
	}
	seqNum := e.seq.Next()
	if e.writer != nil {
		if err := e.writer.Append(wal.Record{
			Type:        wal.RecordDelete,
			SeqNum:      seqNum,
			TimestampUs: common.NowMicros(),
			Key:         key,
		}); err != nil {
			return err
		}
	}

	b := e.bucketFor(key)
	existed := b.delete(key, seqNum)
	if !existed {
		return common.ErrKeyNotFound
	}
	e.liveKeys.Add(-1)

	e.touch(func(s *common.Stats) {
		s.DeleteCount++
		s.NumKeys = e.liveKeys.Load()
	})
	return nil
}

// Count returns the number of live keys across all buckets.
func (e *Engine) Count() uint64 {
	v := e.liveKeys.Load()
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// PrefixScan filters linearly across all buckets: the hash engine is
// unordered, so there is no next-key upper-bound shortcut (spec §4.1:
// "unordered engines filter linearly").
func (e *Engine) PrefixScan(prefix []byte, limit int) ([]common.KVPair, error) {
	var out []common.KVPair
	for _, b := range e.buckets {
		b.forEach(func(key, value []byte, seqNum uint64) {
			if limit > 0 && len(out) >= limit {
				return
			}
			if len(key) >= len(prefix) && string(key[:len(prefix)]) == string(prefix) {
				out = append(out, common.KVPair{
					Key:    append([]byte(nil), key...),
					Value:  append([]byte(nil), value...),
					SeqNum: seqNum,
				})
			}
		})
	}
	return out, nil
}

// Close shuts down the engine, closing the WAL writer if present.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.writer != nil {
		return e.writer.Close()
	}
	return nil
}

// Sync forces the WAL to durable storage; a no-op for in-memory instances.
func (e *Engine) Sync() error {
	if e.writer != nil {
		return e.writer.Sync()
	}
	return nil
}

// Compact is a no-op: the hash engine has no on-disk SSTable-style
// amplification to reclaim (its WAL is only replayed at startup, never
// read again).
func (e *Engine) Compact() error { return nil }

// Stats returns a copy of the engine's statistics.
func (e *Engine) Stats() common.Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	s := e.stats
	s.NumSegments = len(e.buckets)
	return s
}

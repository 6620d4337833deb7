// Package lsm implements the spec's LSM-Tree engine: memtable plus
// leveled SSTables, a shared write-ahead log for durability, a manifest
// for crash-safe metadata, and a priority-scheduled background compactor
// (spec §4.3).
package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Lzww0608/ConcordKV-sub001/common"
	"github.com/Lzww0608/ConcordKV-sub001/manifest"
	"github.com/Lzww0608/ConcordKV-sub001/wal"
)

// Config contains configuration for the LSM-Tree (spec §6).
type Config struct {
	DataDir      string
	MemTableSize int // Maximum memtable size in bytes
	MaxL0Files   int // Trigger compaction when L0 reaches this many files

	MaxFrozenMemtables int    // bounded FROZEN FIFO capacity (spec §4.3.1)
	Compression        string // "none", "lz4", or "snappy" (spec §4.3.2)
	SyncOnWrite        bool
	MaxWALSegmentBytes int64
	BaseBytes          int64 // base of the level budgets; Li budget = BaseBytes*SizeMultiplier^i
	SizeMultiplier     int64
	CompactionWorkers  int

	Logger *zap.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		MemTableSize:       4 * 1024 * 1024, // 4MB
		MaxL0Files:         4,
		MaxFrozenMemtables: defaultMaxFrozen,
		Compression:        "none",
		MaxWALSegmentBytes: 4 * 1024 * 1024,
		BaseBytes:          defaultBaseBytes,
		SizeMultiplier:     defaultMultiplier,
		CompactionWorkers:  2,
	}
}

// LSM is the main LSM-Tree storage engine.
type LSM struct {
	config      Config
	memtables   *MemTableManager
	walWriter   *wal.Writer
	walDir      string
	manifest    *manifest.Manifest
	manifestMu  sync.Mutex
	levels      *LevelManager
	compression CompressionType
	seq         *common.MonotonicSeq
	nextFileNum uint64 // advanced under fileNumMu
	fileNumMu   sync.Mutex
	scheduler   *scheduler
	log         *zap.Logger
	closed      atomic.Bool

	stats struct {
		writeCount   atomic.Int64
		readCount    atomic.Int64
		flushCount   atomic.Int64
		compactCount atomic.Int64
	}
}

// New creates a new LSM-Tree storage engine, replaying its write-ahead log
// and loading any existing SSTables (spec §4.3.5, §4.3.6).
func New(config Config) (*LSM, error) {
	if config.MaxFrozenMemtables <= 0 {
		config.MaxFrozenMemtables = defaultMaxFrozen
	}
	if config.CompactionWorkers <= 0 {
		config.CompactionWorkers = 2
	}
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	compression, err := ParseCompressionType(config.Compression)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	mf, err := manifest.Open(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	lsm := &LSM{
		config:      config,
		memtables:   NewMemTableManager(config.MemTableSize, config.MaxFrozenMemtables),
		manifest:    mf,
		levels:      NewLevelManagerWithPolicy(config.MaxL0Files, config.BaseBytes, config.SizeMultiplier),
		compression: compression,
		seq:         common.NewMonotonicSeq(mf.RecoverySeq),
		nextFileNum: mf.NextFileID,
		log:         log,
		walDir:      filepath.Join(config.DataDir, "wal"),
	}

	if err := lsm.recoverFromWAL(); err != nil {
		return nil, fmt.Errorf("failed to recover from WAL: %w", err)
	}

	walWriter, err := wal.NewWriter(lsm.walDir, config.MaxWALSegmentBytes, config.SyncOnWrite, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}
	lsm.walWriter = walWriter

	if err := lsm.loadSSTables(); err != nil {
		return nil, fmt.Errorf("failed to load SSTables: %w", err)
	}

	lsm.scheduler = newScheduler(config.CompactionWorkers, log)

	log.Info("lsm-tree initialized", zap.String("data_dir", config.DataDir))
	return lsm, nil
}

// recoverFromWAL replays records with seq_num above the manifest's
// recovery cursor into the memtable manager; anything at or below that
// cursor is already durable in an SSTable (spec §4.3.5).
func (lsm *LSM) recoverFromWAL() error {
	needsRecovery, err := wal.NeedsRecovery(lsm.walDir)
	if err != nil {
		return err
	}
	if !needsRecovery {
		return nil
	}

	var maxSeq uint64
	var count int
	err = wal.ReplayAll(lsm.walDir, lsm.log, func(r wal.Record) error {
		if r.SeqNum <= lsm.manifest.RecoverySeq {
			return nil
		}
		switch r.Type {
		case wal.RecordPut:
			lsm.memtables.Put(string(r.Key), append([]byte(nil), r.Value...), r.SeqNum)
		case wal.RecordDelete:
			lsm.memtables.Delete(string(r.Key), r.SeqNum)
		}
		if r.SeqNum > maxSeq {
			maxSeq = r.SeqNum
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	if maxSeq > lsm.seq.Current() {
		lsm.seq.Reset(maxSeq)
	}
	if count > 0 {
		lsm.log.Info("lsm-tree recovered entries from wal", zap.Int("count", count))
	}
	return nil
}

// loadSSTables scans the data directory and loads existing SSTables.
func (lsm *LSM) loadSSTables() error {
	files, err := os.ReadDir(lsm.config.DataDir)
	if err != nil {
		return err
	}

	var maxFileNum uint64
	for _, file := range files {
		if filepath.Ext(file.Name()) != ".sst" {
			continue
		}

		var level int
		var fileNum uint64
		if _, err := fmt.Sscanf(file.Name(), "L%d-%d.sst", &level, &fileNum); err != nil {
			lsm.log.Warn("skipping malformed sstable filename", zap.String("name", file.Name()))
			continue
		}

		path := filepath.Join(lsm.config.DataDir, file.Name())
		sst, err := OpenSSTable(path, level, fileNum, lsm.compression)
		if err != nil {
			lsm.log.Warn("failed to open sstable", zap.String("name", file.Name()), zap.Error(err))
			continue
		}

		lsm.levels.AddSSTable(sst, level)
		if fileNum >= maxFileNum {
			maxFileNum = fileNum + 1
		}
	}

	if maxFileNum > lsm.nextFileNum {
		lsm.nextFileNum = maxFileNum
	}
	return nil
}

// allocFileNum atomically reserves the next SSTable file number, keeping
// the in-memory counter and the manifest's durable counter in lockstep.
func (lsm *LSM) allocFileNum() uint64 {
	lsm.fileNumMu.Lock()
	defer lsm.fileNumMu.Unlock()
	n := lsm.nextFileNum
	lsm.nextFileNum++
	return n
}

// Put inserts a key-value pair.
func (lsm *LSM) Put(key string, value []byte) error {
	seq := lsm.seq.Next()

	if err := lsm.walWriter.Append(wal.Record{
		Type:        wal.RecordPut,
		SeqNum:      seq,
		TimestampUs: common.NowMicros(),
		Key:         []byte(key),
		Value:       value,
	}); err != nil {
		return fmt.Errorf("failed to append to WAL: %w", err)
	}

	lsm.memtables.Put(key, value, seq)
	lsm.stats.writeCount.Add(1)
	lsm.maybeScheduleFlush()
	return nil
}

// Delete marks a key as deleted.
func (lsm *LSM) Delete(key string) error {
	seq := lsm.seq.Next()

	if err := lsm.walWriter.Append(wal.Record{
		Type:        wal.RecordDelete,
		SeqNum:      seq,
		TimestampUs: common.NowMicros(),
		Key:         []byte(key),
	}); err != nil {
		return fmt.Errorf("failed to append to WAL: %w", err)
	}

	lsm.memtables.Delete(key, seq)
	lsm.maybeScheduleFlush()
	return nil
}

// maybeScheduleFlush submits a flush task once FROZEN has reached half its
// capacity (spec §4.3.1's flush-trigger signal).
func (lsm *LSM) maybeScheduleFlush() {
	if lsm.memtables.ShouldFlush() {
		lsm.scheduler.submit(&task{kind: TaskFlush, priority: PriorityHigh, run: lsm.runFlushTask})
	}
}

// Get retrieves a value for a key, consulting the memtables first, then
// SSTables from L0 (newest file first) down to the bottom level.
func (lsm *LSM) Get(key string) ([]byte, bool, error) {
	lsm.stats.readCount.Add(1)

	if value, _, deleted, found := lsm.memtables.Get(key); found {
		if deleted {
			return nil, false, nil
		}
		return value, true, nil
	}

	for level := 0; level < NumLevels; level++ {
		sstables := lsm.levels.GetAllSSTables(level)
		if level == 0 {
			sort.Slice(sstables, func(i, j int) bool {
				return sstables[i].FileNum() > sstables[j].FileNum()
			})
			for _, sst := range sstables {
				value, _, deleted, found, err := sst.GetWithSeq(key)
				if err != nil {
					return nil, false, err
				}
				if found {
					if deleted {
						return nil, false, nil
					}
					return value, true, nil
				}
			}
			continue
		}

		for _, sst := range sstables {
			if key < sst.MinKey() || key > sst.MaxKey() {
				continue
			}
			value, _, deleted, found, err := sst.GetWithSeq(key)
			if err != nil {
				return nil, false, err
			}
			if found {
				if deleted {
					return nil, false, nil
				}
				return value, true, nil
			}
			break // non-overlapping level, no other file can match
		}
	}

	return nil, false, nil
}

// Sync forces a WAL sync to disk.
func (lsm *LSM) Sync() error {
	return lsm.walWriter.Sync()
}

// Close drains all memtables to disk, persists the manifest, and closes
// every open file handle.
func (lsm *LSM) Close() error {
	if lsm.closed.Swap(true) {
		return nil
	}
	lsm.scheduler.close()

	if mt := lsm.memtables.Freeze(); mt != nil {
		if err := lsm.flushOne(mt); err != nil {
			return err
		}
	}
	for {
		mt := lsm.memtables.PopOldestFrozen()
		if mt == nil {
			break
		}
		if err := lsm.flushOne(mt); err != nil {
			return err
		}
	}

	lsm.manifestMu.Lock()
	lsm.manifest.RecoverySeq = lsm.seq.Current()
	lsm.manifest.NextFileID = lsm.nextFileNum
	saveErr := lsm.manifest.Save()
	lsm.manifestMu.Unlock()
	if saveErr != nil {
		return saveErr
	}

	if err := lsm.walWriter.Close(); err != nil {
		return err
	}
	if err := wal.RemoveAll(lsm.walDir); err != nil {
		return err
	}

	return lsm.levels.CloseAll()
}

// flushOne writes a single memtable to L0 as part of Close()'s final
// drain (synchronous; the scheduler has already been stopped).
func (lsm *LSM) flushOne(mt *MemTable) error {
	sst, _, err := lsm.buildSSTableFromMemtable(mt, 0)
	if err != nil {
		return err
	}
	if sst == nil {
		return nil
	}
	lsm.levels.AddSSTable(sst, 0)
	lsm.applyManifestDelta(0, nil, []uint64{sst.FileNum()})
	lsm.stats.flushCount.Add(1)
	return nil
}

// buildSSTableFromMemtable flushes a memtable's entries to a new L0
// SSTable, returning the opened table and the highest sequence number it
// contains. Returns a nil table (no error) if the memtable was empty.
func (lsm *LSM) buildSSTableFromMemtable(mt *MemTable, level int) (*SSTable, uint64, error) {
	entries := mt.GetAllEntries()
	if len(entries) == 0 {
		return nil, 0, nil
	}

	fileNum := lsm.allocFileNum()
	path := filepath.Join(lsm.config.DataDir, fmt.Sprintf("L%d-%06d.sst", level, fileNum))

	builder, err := NewSSTableBuilderWithCompression(path, len(entries), lsm.compression)
	if err != nil {
		return nil, 0, err
	}

	var maxSeq uint64
	for _, e := range entries {
		if err := builder.Add(e.Key, e.Value, e.Sequence, e.Deleted); err != nil {
			builder.Abort()
			return nil, 0, err
		}
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
	}
	if err := builder.Finish(); err != nil {
		return nil, 0, err
	}

	sst, err := OpenSSTable(path, level, fileNum, lsm.compression)
	if err != nil {
		return nil, 0, err
	}
	return sst, maxSeq, nil
}

// applyManifestDelta atomically updates and persists the manifest after a
// flush or compaction changes a level's live-file set (spec §4.3.4,
// §4.3.6).
func (lsm *LSM) applyManifestDelta(level int, removed, added []uint64) {
	lsm.manifestMu.Lock()
	defer lsm.manifestMu.Unlock()
	lsm.manifest.ApplyCompaction(level, removed, added)
	lsm.manifest.NextFileID = lsm.nextFileNum
	if err := lsm.manifest.Save(); err != nil {
		lsm.log.Warn("failed to save manifest", zap.Error(err))
	}
}

// runFlushTask pops the oldest frozen memtable and flushes it to L0,
// triggering L0 compaction when the new file count crosses the limit
// (spec §4.3.1, §4.3.3). Run by the scheduler.
func (lsm *LSM) runFlushTask() error {
	mt := lsm.memtables.PopOldestFrozen()
	if mt == nil {
		return nil
	}
	sst, maxSeq, err := lsm.buildSSTableFromMemtable(mt, 0)
	if err != nil {
		return err
	}
	if sst == nil {
		return nil
	}
	lsm.levels.AddSSTable(sst, 0)
	lsm.applyManifestDelta(0, nil, []uint64{sst.FileNum()})
	lsm.stats.flushCount.Add(1)
	_ = maxSeq

	if lsm.levels.ShouldCompact(0) {
		lsm.scheduler.submit(&task{kind: TaskCompactLevel, priority: PriorityNormal, level: 0, run: func() error {
			return lsm.runCompactionTask(0)
		}})
	}
	return nil
}

// runCompactionTask compacts level into level+1 (or L0 into L1 for the
// level-0 special case, since L0 files may overlap arbitrarily), then
// cascades into the next level if it is now over budget (spec §4.3.3,
// §4.3.4).
func (lsm *LSM) runCompactionTask(level int) error {
	lsm.stats.compactCount.Add(1)

	if level == 0 {
		l0Files := lsm.levels.GetAllSSTables(0)
		l1Files := lsm.levels.GetAllSSTables(1)

		lsm.fileNumMu.Lock()
		newFiles, oldL1Files, err := CompactL0ToL1(lsm.config.DataDir, l0Files, l1Files, &lsm.nextFileNum, lsm.compression)
		lsm.fileNumMu.Unlock()
		if err != nil {
			return fmt.Errorf("l0->l1 compaction: %w", err)
		}

		for _, sst := range l0Files {
			lsm.levels.RemoveSSTable(sst, 0)
		}
		for _, sst := range oldL1Files {
			lsm.levels.RemoveSSTable(sst, 1)
		}
		for _, sst := range newFiles {
			lsm.levels.AddSSTable(sst, 1)
		}

		removedIDs := fileIDs(oldL1Files)
		addedIDs := fileIDs(newFiles)
		lsm.applyManifestDelta(0, fileIDs(l0Files), nil)
		lsm.applyManifestDelta(1, removedIDs, addedIDs)

		DeleteSSTables(l0Files)
		DeleteSSTables(oldL1Files)

		if lsm.levels.ShouldCompact(1) {
			lsm.scheduler.submit(&task{kind: TaskCompactLevel, priority: PriorityNormal, level: 1, run: func() error {
				return lsm.runCompactionTask(1)
			}})
		}
		return nil
	}

	targetLevel := level + 1
	sourceFiles := lsm.levels.PickCompactionFiles(level)
	targetFiles := lsm.levels.GetAllSSTables(targetLevel)

	lsm.fileNumMu.Lock()
	newFiles, oldTargetFiles, err := CompactLnToLn1(lsm.config.DataDir, sourceFiles, targetFiles, targetLevel, &lsm.nextFileNum, lsm.compression)
	lsm.fileNumMu.Unlock()
	if err != nil {
		return fmt.Errorf("l%d->l%d compaction: %w", level, targetLevel, err)
	}

	for _, sst := range sourceFiles {
		lsm.levels.RemoveSSTable(sst, level)
	}
	for _, sst := range oldTargetFiles {
		lsm.levels.RemoveSSTable(sst, targetLevel)
	}
	for _, sst := range newFiles {
		lsm.levels.AddSSTable(sst, targetLevel)
	}

	lsm.applyManifestDelta(level, fileIDs(sourceFiles), nil)
	lsm.applyManifestDelta(targetLevel, fileIDs(oldTargetFiles), fileIDs(newFiles))

	DeleteSSTables(sourceFiles)
	DeleteSSTables(oldTargetFiles)

	if targetLevel < BottomLevel && lsm.levels.ShouldCompact(targetLevel) {
		lsm.scheduler.submit(&task{kind: TaskCompactLevel, priority: PriorityNormal, level: targetLevel, run: func() error {
			return lsm.runCompactionTask(targetLevel)
		}})
	}
	return nil
}

func fileIDs(sstables []*SSTable) []uint64 {
	ids := make([]uint64, len(sstables))
	for i, sst := range sstables {
		ids[i] = sst.FileNum()
	}
	return ids
}

// GetLevels returns the level manager (for debugging/stats).
func (lsm *LSM) GetLevels() *LevelManager {
	return lsm.levels
}

// Stats returns point-in-time counters, consumed by the adapter's
// common.Stats translation.
func (lsm *LSM) Stats() (writeCount, readCount, flushCount, compactCount int64) {
	return lsm.stats.writeCount.Load(), lsm.stats.readCount.Load(), lsm.stats.flushCount.Load(), lsm.stats.compactCount.Load()
}

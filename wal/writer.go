package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const segmentPrefix = "wal-"
const segmentSuffix = ".log"

// SegmentName formats the on-disk file name for a WAL segment, matching
// spec §6's directory layout: wal/wal-{seq:016}.log.
func SegmentName(seq uint64) string {
	return fmt.Sprintf("%s%016d%s", segmentPrefix, seq, segmentSuffix)
}

// ParseSegmentName extracts the sequence id from a segment file name, or
// ok=false if name does not match the expected pattern.
func ParseSegmentName(name string) (seq uint64, ok bool) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Writer appends records to a single open segment, rotating to a new
// segment once the size limit is crossed. At most one segment is open for
// append at any time (spec §3: WAL segment invariant).
type Writer struct {
	mu              sync.Mutex
	dir             string
	maxSegmentBytes int64
	syncWrites      bool
	log             *zap.Logger

	file        *os.File
	segmentSeq  uint64
	segmentSize int64
}

// NewWriter opens (or creates) the WAL directory and begins appending to a
// fresh segment numbered one past the highest existing segment id.
func NewWriter(dir string, maxSegmentBytes int64, syncWrites bool, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	nextSeq, err := nextSegmentSeq(dir)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		dir:             dir,
		maxSegmentBytes: maxSegmentBytes,
		syncWrites:      syncWrites,
		log:             log,
	}
	if err := w.openSegment(nextSeq); err != nil {
		return nil, err
	}
	return w, nil
}

func nextSegmentSeq(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("wal: list segments: %w", err)
	}
	var max uint64
	found := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if seq, ok := ParseSegmentName(e.Name()); ok {
			if !found || seq > max {
				max = seq
				found = true
			}
		}
	}
	if !found {
		return 0, nil
	}
	return max + 1, nil
}

func (w *Writer) openSegment(seq uint64) error {
	path := filepath.Join(w.dir, SegmentName(seq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("wal: open segment %d: %w", seq, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("wal: stat segment %d: %w", seq, err)
	}
	w.file = f
	w.segmentSeq = seq
	w.segmentSize = stat.Size()
	return nil
}

// Append writes a single record and rotates the segment afterwards if the
// size limit was crossed. If syncWrites is set, it fsyncs after the write.
func (w *Writer) Append(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := r.Encode()
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	w.segmentSize += int64(len(buf))

	if w.syncWrites {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("wal: fsync: %w", err)
		}
	}

	if w.maxSegmentBytes > 0 && w.segmentSize >= w.maxSegmentBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close segment %d: %w", w.segmentSeq, err)
	}
	w.log.Info("wal segment rotated", zap.Uint64("closed_seq", w.segmentSeq))
	return w.openSegment(w.segmentSeq + 1)
}

// Sync forces the current segment to durable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Close closes the currently open segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// Segments lists every segment file's sequence id in the WAL directory,
// ascending. Recovery enumerates segments this way rather than just
// checking directory existence (spec §9's open-question resolution).
func Segments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}
	var seqs []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if seq, ok := ParseSegmentName(e.Name()); ok {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// NeedsRecovery reports whether the WAL directory contains at least one
// non-empty segment. Per spec §9, "directory exists" is not sufficient.
func NeedsRecovery(dir string) (bool, error) {
	seqs, err := Segments(dir)
	if err != nil {
		return false, err
	}
	for _, seq := range seqs {
		path := filepath.Join(dir, SegmentName(seq))
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// RemoveAll deletes every segment in dir, used after a durable checkpoint
// makes WAL replay unnecessary.
func RemoveAll(dir string) error {
	seqs, err := Segments(dir)
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		if err := os.Remove(filepath.Join(dir, SegmentName(seq))); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

package manifest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// Snapshot magic numbers from spec §6.
const (
	MagicSnapshot     uint32 = 0x534E4150 // "SNAP"
	MagicIncremental  uint32 = 0x494E4352 // "INCR"
	snapshotVersion   uint32 = 1
)

// SnapshotHeader is the fixed header written at the start of every
// snapshot file.
type SnapshotHeader struct {
	Magic     uint32
	Version   uint32
	Timestamp uint64
	Sequence  uint64

	// FromSeq/ToSeq are only meaningful (and only written) when Magic ==
	// MagicIncremental.
	FromSeq uint64
	ToSeq   uint64
}

// snapshotEnd is the END marker written after the last entry.
const snapshotEnd = "END_"

// SnapshotEntry is one engine-specific key/value/seq/deleted tuple stored
// in a snapshot file.
type SnapshotEntry struct {
	Key     []byte
	Value   []byte
	SeqNum  uint64
	Deleted bool
}

// WriteSnapshot writes a full snapshot file at path containing entries in
// order, following the header/entries/END layout from spec §6.
func WriteSnapshot(path string, sequence uint64, timestampUnixNano uint64, entries []SnapshotEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeSnapshotHeader(w, SnapshotHeader{
		Magic:     MagicSnapshot,
		Version:   snapshotVersion,
		Timestamp: timestampUnixNano,
		Sequence:  sequence,
	}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeSnapshotEntry(w, e); err != nil {
			return err
		}
	}
	if _, err := w.WriteString(snapshotEnd); err != nil {
		return fmt.Errorf("snapshot: write end marker: %w", err)
	}
	return w.Flush()
}

// WriteIncrementalSnapshot writes an incremental snapshot covering
// (fromSeq, toSeq].
func WriteIncrementalSnapshot(path string, fromSeq, toSeq uint64, timestampUnixNano uint64, entries []SnapshotEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeSnapshotHeader(w, SnapshotHeader{
		Magic:     MagicIncremental,
		Version:   snapshotVersion,
		Timestamp: timestampUnixNano,
		Sequence:  toSeq,
		FromSeq:   fromSeq,
		ToSeq:     toSeq,
	}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeSnapshotEntry(w, e); err != nil {
			return err
		}
	}
	if _, err := w.WriteString(snapshotEnd); err != nil {
		return fmt.Errorf("snapshot: write end marker: %w", err)
	}
	return w.Flush()
}

func writeSnapshotHeader(w *bufio.Writer, h SnapshotHeader) error {
	buf := make([]byte, 4+4+8+8)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint64(buf[8:], h.Timestamp)
	binary.LittleEndian.PutUint64(buf[16:], h.Sequence)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}
	if h.Magic == MagicIncremental {
		rangeBuf := make([]byte, 16)
		binary.LittleEndian.PutUint64(rangeBuf[0:], h.FromSeq)
		binary.LittleEndian.PutUint64(rangeBuf[8:], h.ToSeq)
		if _, err := w.Write(rangeBuf); err != nil {
			return fmt.Errorf("snapshot: write incremental range: %w", err)
		}
	}
	return nil
}

func writeSnapshotEntry(w *bufio.Writer, e SnapshotEntry) error {
	header := make([]byte, 4+4+8+1)
	binary.LittleEndian.PutUint32(header[0:], uint32(len(e.Key)))
	binary.LittleEndian.PutUint32(header[4:], uint32(len(e.Value)))
	binary.LittleEndian.PutUint64(header[8:], e.SeqNum)
	if e.Deleted {
		header[16] = 1
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(e.Key); err != nil {
		return err
	}
	if _, err := w.Write(e.Value); err != nil {
		return err
	}
	return nil
}

// ReadSnapshot reads back a snapshot file written by WriteSnapshot or
// WriteIncrementalSnapshot.
func ReadSnapshot(path string) (SnapshotHeader, []SnapshotEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SnapshotHeader{}, nil, fmt.Errorf("snapshot: read: %w", err)
	}
	if len(data) < 24 {
		return SnapshotHeader{}, nil, fmt.Errorf("snapshot: truncated header")
	}

	h := SnapshotHeader{
		Magic:     binary.LittleEndian.Uint32(data[0:]),
		Version:   binary.LittleEndian.Uint32(data[4:]),
		Timestamp: binary.LittleEndian.Uint64(data[8:]),
		Sequence:  binary.LittleEndian.Uint64(data[16:]),
	}
	offset := 24
	if h.Magic != MagicSnapshot && h.Magic != MagicIncremental {
		return SnapshotHeader{}, nil, fmt.Errorf("snapshot: bad magic %x", h.Magic)
	}
	if h.Magic == MagicIncremental {
		if len(data) < offset+16 {
			return SnapshotHeader{}, nil, fmt.Errorf("snapshot: truncated incremental range")
		}
		h.FromSeq = binary.LittleEndian.Uint64(data[offset:])
		h.ToSeq = binary.LittleEndian.Uint64(data[offset+8:])
		offset += 16
	}

	var entries []SnapshotEntry
	for offset < len(data) {
		if len(data)-offset == len(snapshotEnd) && string(data[offset:]) == snapshotEnd {
			break
		}
		if len(data)-offset < 17 {
			return SnapshotHeader{}, nil, fmt.Errorf("snapshot: truncated entry header")
		}
		keyLen := binary.LittleEndian.Uint32(data[offset:])
		valueLen := binary.LittleEndian.Uint32(data[offset+4:])
		seq := binary.LittleEndian.Uint64(data[offset+8:])
		deleted := data[offset+16] == 1
		offset += 17

		if len(data)-offset < int(keyLen+valueLen) {
			return SnapshotHeader{}, nil, fmt.Errorf("snapshot: truncated entry payload")
		}
		key := make([]byte, keyLen)
		copy(key, data[offset:offset+int(keyLen)])
		offset += int(keyLen)
		value := make([]byte, valueLen)
		copy(value, data[offset:offset+int(valueLen)])
		offset += int(valueLen)

		entries = append(entries, SnapshotEntry{Key: key, Value: value, SeqNum: seq, Deleted: deleted})
	}

	return h, entries, nil
}

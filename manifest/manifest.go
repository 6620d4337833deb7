// Package manifest implements the durable metadata file that records the
// authoritative SSTable set and recovery cursor (spec §3, §4.3.6, §6).
package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring"
)

// NumLevels is the fixed LSM level count (spec §4.3.3: "maintains 7 levels").
const NumLevels = 7

const schemaVersion = 1

// fixed record layout: version(4) nextFileID(8) recoverySeq(8) fileCount[7](4 each) = 4+8+8+28 = 48
const recordSize = 4 + 8 + 8 + NumLevels*4

// Manifest is the single durable record of the LSM's current SSTable set.
// It is rewritten (not appended) on every durable checkpoint, via
// create-temp-then-rename for atomic replacement (spec §4.3.6).
type Manifest struct {
	path string

	SchemaVersion   uint32
	NextFileID      uint64
	RecoverySeq     uint64
	LevelFileCounts [NumLevels]uint32

	// LiveFiles[level] is the set of file ids currently live at that
	// level. Roaring bitmaps make "which files did compaction add/remove"
	// an O(delta) AndNot/And rather than a linear diff over potentially
	// thousands of SSTables (spec §4.3.4's manifest update step).
	LiveFiles [NumLevels]*roaring.Bitmap

	// Quarantined holds file ids flagged unreadable after a CRC failure
	// on read (spec §7: "the file is quarantined").
	Quarantined *roaring.Bitmap
}

func fresh() *Manifest {
	m := &Manifest{
		SchemaVersion: schemaVersion,
		NextFileID:    1,
		Quarantined:   roaring.New(),
	}
	for i := range m.LiveFiles {
		m.LiveFiles[i] = roaring.New()
	}
	return m
}

// Open loads the manifest at dir/MANIFEST, initializing a fresh one if
// absent (spec §4.3.6).
func Open(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "MANIFEST")
	m, err := load(path)
	if os.IsNotExist(err) {
		m = fresh()
		m.path = path
		if err := m.Save(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	m.path = path
	return m, nil
}

func load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < recordSize {
		return nil, fmt.Errorf("manifest: truncated record (%d bytes)", len(data))
	}

	m := fresh()
	m.SchemaVersion = binary.LittleEndian.Uint32(data[0:])
	m.NextFileID = binary.LittleEndian.Uint64(data[4:])
	m.RecoverySeq = binary.LittleEndian.Uint64(data[12:])
	for i := 0; i < NumLevels; i++ {
		m.LevelFileCounts[i] = binary.LittleEndian.Uint32(data[20+i*4:])
	}

	rest := data[recordSize:]
	var chunk []byte
	chunk, rest, err = readChunk(rest)
	if err != nil {
		return nil, fmt.Errorf("manifest: decode quarantine set: %w", err)
	}
	if _, err := m.Quarantined.ReadFrom(bytes.NewReader(chunk)); err != nil {
		return nil, fmt.Errorf("manifest: decode quarantine set: %w", err)
	}
	for i := 0; i < NumLevels; i++ {
		chunk, rest, err = readChunk(rest)
		if err != nil {
			return nil, fmt.Errorf("manifest: decode level %d live set: %w", i, err)
		}
		if _, err := m.LiveFiles[i].ReadFrom(bytes.NewReader(chunk)); err != nil {
			return nil, fmt.Errorf("manifest: decode level %d live set: %w", i, err)
		}
	}
	return m, nil
}

func readChunk(data []byte) (chunk, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(data[0:])
	if uint32(len(data)-4) < n {
		return nil, nil, fmt.Errorf("truncated chunk body")
	}
	return data[4 : 4+n], data[4+n:], nil
}

// Save atomically rewrites the manifest via create-temp-then-rename.
func (m *Manifest) Save() error {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(buf[0:], m.SchemaVersion)
	binary.LittleEndian.PutUint64(buf[4:], m.NextFileID)
	binary.LittleEndian.PutUint64(buf[12:], m.RecoverySeq)
	for i := 0; i < NumLevels; i++ {
		binary.LittleEndian.PutUint32(buf[20+i*4:], m.LevelFileCounts[i])
	}

	quarantineBytes, err := bitmapBytes(m.Quarantined)
	if err != nil {
		return fmt.Errorf("manifest: encode quarantine set: %w", err)
	}
	buf = append(buf, lenPrefixed(quarantineBytes)...)
	for i := 0; i < NumLevels; i++ {
		levelBytes, err := bitmapBytes(m.LiveFiles[i])
		if err != nil {
			return fmt.Errorf("manifest: encode level %d live set: %w", i, err)
		}
		buf = append(buf, lenPrefixed(levelBytes)...)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("manifest: write temp: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("manifest: rename: %w", err)
	}
	return nil
}

func bitmapBytes(bm *roaring.Bitmap) ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := bm.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lenPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

// AllocFileID returns the next file id and advances the counter. The
// caller must Save() to make the allocation durable.
func (m *Manifest) AllocFileID() uint64 {
	id := m.NextFileID
	m.NextFileID++
	return id
}

// ApplyCompaction atomically updates the manifest's bookkeeping to reflect
// a compaction that removed `removed` file ids and added `added` file ids
// at `level`. NextFileID is not changed here; the caller sets it.
func (m *Manifest) ApplyCompaction(level int, removed, added []uint64) {
	for _, id := range removed {
		m.LiveFiles[level].Remove(uint32(id))
	}
	for _, id := range added {
		m.LiveFiles[level].Add(uint32(id))
	}
	m.LevelFileCounts[level] = uint32(m.LiveFiles[level].GetCardinality())
}

// Quarantine flags fileID as unreadable after a CRC failure (spec §7).
func (m *Manifest) Quarantine(fileID uint64) {
	m.Quarantined.Add(uint32(fileID))
}

// IsQuarantined reports whether fileID has been flagged unreadable.
func (m *Manifest) IsQuarantined(fileID uint64) bool {
	return m.Quarantined.Contains(uint32(fileID))
}

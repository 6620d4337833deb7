package lsm

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sort"
)

const (
	// blockSize is the target uncompressed size of a data block before a
	// new one is started (spec §4.3.2: "block-structured").
	blockSize = 4096

	sstableMagic   uint32 = 0x53535441 // "SSTA"
	sstableVersion uint32 = 1

	// footerSize is the fixed trailer (spec §6): magic, version,
	// index_offset, index_size, bloom_offset, bloom_size, min_seq, max_seq,
	// entry_count, crc32, reserved.
	footerSize = 64
)

// IndexEntry maps a data block's first key to its location and the
// sequence number of that first entry (spec §6's index-entry layout).
type IndexEntry struct {
	Key         string
	BlockOffset uint64
	BlockSize   uint32
	SeqNum      uint64
}

// blockEntry is one decoded data-block entry.
type blockEntry struct {
	Key     string
	Value   []byte
	SeqNum  uint64
	Deleted bool
}

// footerFields are the variable parts of the fixed 64-byte footer.
type footerFields struct {
	IndexOffset uint64
	IndexSize   uint32
	BloomOffset uint64
	BloomSize   uint32
	MinSeq      uint64
	MaxSeq      uint64
	EntryCount  uint64
}

// encodeFooter serializes the 64-byte footer, with a CRC32 over the
// preceding 56 bytes guarding against a torn final write.
func encodeFooter(f footerFields) []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(buf[0:], sstableMagic)
	binary.LittleEndian.PutUint32(buf[4:], sstableVersion)
	binary.LittleEndian.PutUint64(buf[8:], f.IndexOffset)
	binary.LittleEndian.PutUint32(buf[16:], f.IndexSize)
	binary.LittleEndian.PutUint64(buf[20:], f.BloomOffset)
	binary.LittleEndian.PutUint32(buf[28:], f.BloomSize)
	binary.LittleEndian.PutUint64(buf[32:], f.MinSeq)
	binary.LittleEndian.PutUint64(buf[40:], f.MaxSeq)
	binary.LittleEndian.PutUint64(buf[48:], f.EntryCount)
	crc := crc32.ChecksumIEEE(buf[0:56])
	binary.LittleEndian.PutUint32(buf[56:], crc)
	return buf
}

// decodeFooter parses and validates a 64-byte footer.
func decodeFooter(buf []byte) (footerFields, error) {
	if len(buf) != footerSize {
		return footerFields{}, fmt.Errorf("sstable: bad footer size %d", len(buf))
	}
	magic := binary.LittleEndian.Uint32(buf[0:])
	if magic != sstableMagic {
		return footerFields{}, fmt.Errorf("sstable: invalid magic number")
	}
	crc := binary.LittleEndian.Uint32(buf[56:])
	if crc32.ChecksumIEEE(buf[0:56]) != crc {
		return footerFields{}, fmt.Errorf("sstable: footer crc mismatch")
	}
	return footerFields{
		IndexOffset: binary.LittleEndian.Uint64(buf[8:]),
		IndexSize:   binary.LittleEndian.Uint32(buf[16:]),
		BloomOffset: binary.LittleEndian.Uint64(buf[20:]),
		BloomSize:   binary.LittleEndian.Uint32(buf[28:]),
		MinSeq:      binary.LittleEndian.Uint64(buf[32:]),
		MaxSeq:      binary.LittleEndian.Uint64(buf[40:]),
		EntryCount:  binary.LittleEndian.Uint64(buf[48:]),
	}, nil
}

// SSTable is an immutable, block-structured sorted file on disk.
//
// Layout: [data blocks][index block][bloom filter block][64-byte footer].
// Each data block is prefixed by a 24-byte header (block_type,
// compressed_size, uncompressed_size, crc32, entry_count, reserved) and may
// be compressed with the level's configured codec (spec §4.3.2).
type SSTable struct {
	file        *os.File
	path        string
	level       int
	fileNum     uint64
	minKey      string
	maxKey      string
	minSeq      uint64
	maxSeq      uint64
	entryCount  uint64
	index       []IndexEntry
	bloomFilter *BloomFilter
	codec       compressor
	fileSize    int64
}

// OpenSSTable opens an existing SSTable, loading its index and bloom
// filter into memory. compression must match the codec the file was built
// with (spec §6: lsm.compression is an engine-wide setting, not per-file).
func OpenSSTable(path string, level int, fileNum uint64, compression CompressionType) (*SSTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sstable: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat sstable: %w", err)
	}
	fileSize := stat.Size()
	if fileSize < footerSize {
		file.Close()
		return nil, fmt.Errorf("sstable file too small")
	}

	footerBuf := make([]byte, footerSize)
	if _, err := file.ReadAt(footerBuf, fileSize-footerSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read footer: %w", err)
	}
	footer, err := decodeFooter(footerBuf)
	if err != nil {
		file.Close()
		return nil, err
	}

	indexData := make([]byte, footer.IndexSize)
	if _, err := file.ReadAt(indexData, int64(footer.IndexOffset)); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	index, err := decodeIndex(indexData)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}

	bloomData := make([]byte, footer.BloomSize)
	if _, err := file.ReadAt(bloomData, int64(footer.BloomOffset)); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read bloom filter: %w", err)
	}
	bloomFilter := DecodeBloomFilter(bloomData)

	codec, err := newCompressor(compression)
	if err != nil {
		file.Close()
		return nil, err
	}

	sst := &SSTable{
		file:        file,
		path:        path,
		level:       level,
		fileNum:     fileNum,
		index:       index,
		bloomFilter: bloomFilter,
		codec:       codec,
		fileSize:    fileSize,
		minSeq:      footer.MinSeq,
		maxSeq:      footer.MaxSeq,
		entryCount:  footer.EntryCount,
	}

	if len(index) > 0 {
		sst.minKey = index[0].Key
		lastEntries, err := sst.decodeBlock(index[len(index)-1])
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to decode last block: %w", err)
		}
		if len(lastEntries) > 0 {
			sst.maxKey = lastEntries[len(lastEntries)-1].Key
		}
	}

	return sst, nil
}

// decodeIndex decodes the index block: [numEntries(4)][entry...], entry =
// [keySize(4)][blockOffset(8)][blockSize(4)][seqNum(8)][key].
func decodeIndex(data []byte) ([]IndexEntry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("index too small")
	}

	numEntries := binary.LittleEndian.Uint32(data[0:])
	entries := make([]IndexEntry, 0, numEntries)

	offset := 4
	for i := uint32(0); i < numEntries; i++ {
		if offset+24 > len(data) {
			return nil, fmt.Errorf("index truncated")
		}
		keySize := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		blockOffset := binary.LittleEndian.Uint64(data[offset:])
		offset += 8
		blockSize := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		seqNum := binary.LittleEndian.Uint64(data[offset:])
		offset += 8

		if offset+int(keySize) > len(data) {
			return nil, fmt.Errorf("index truncated")
		}
		key := string(data[offset : offset+int(keySize)])
		offset += int(keySize)

		entries = append(entries, IndexEntry{
			Key:         key,
			BlockOffset: blockOffset,
			BlockSize:   blockSize,
			SeqNum:      seqNum,
		})
	}

	return entries, nil
}

// decodeBlock reads and decompresses the data block described by e,
// returning its entries in on-disk (key-ascending) order.
func (sst *SSTable) decodeBlock(e IndexEntry) ([]blockEntry, error) {
	raw := make([]byte, e.BlockSize)
	if _, err := sst.file.ReadAt(raw, int64(e.BlockOffset)); err != nil {
		return nil, fmt.Errorf("failed to read block: %w", err)
	}
	if len(raw) < blockHeaderSize {
		return nil, fmt.Errorf("block truncated")
	}

	compressedSize := binary.LittleEndian.Uint32(raw[4:])
	uncompressedSize := binary.LittleEndian.Uint32(raw[8:])
	wantCRC := binary.LittleEndian.Uint32(raw[12:])
	entryCount := binary.LittleEndian.Uint32(raw[16:])

	payload := raw[blockHeaderSize:]
	if uint32(len(payload)) < compressedSize {
		return nil, fmt.Errorf("block payload truncated")
	}
	payload = payload[:compressedSize]
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return nil, fmt.Errorf("block crc mismatch")
	}

	decoded, err := sst.codec.Decompress(payload, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress block: %w", err)
	}

	entries := make([]blockEntry, 0, entryCount)
	offset := 0
	for i := uint32(0); i < entryCount; i++ {
		if offset+entryHeaderSize > len(decoded) {
			return nil, fmt.Errorf("block entries truncated")
		}
		keySize := binary.LittleEndian.Uint32(decoded[offset:])
		valueSize := binary.LittleEndian.Uint32(decoded[offset+4:])
		seqNum := binary.LittleEndian.Uint64(decoded[offset+8:])
		deleted := decoded[offset+16] == 1
		offset += entryHeaderSize

		if offset+int(keySize)+int(valueSize) > len(decoded) {
			return nil, fmt.Errorf("block entries truncated")
		}
		key := string(decoded[offset : offset+int(keySize)])
		offset += int(keySize)
		value := make([]byte, valueSize)
		copy(value, decoded[offset:offset+int(valueSize)])
		offset += int(valueSize)

		entries = append(entries, blockEntry{Key: key, Value: value, SeqNum: seqNum, Deleted: deleted})
	}

	return entries, nil
}

// Get searches for a key, returning its value if present and not a
// tombstone.
func (sst *SSTable) Get(key string) ([]byte, bool, error) {
	value, _, deleted, found, err := sst.GetWithSeq(key)
	if err != nil || !found || deleted {
		return nil, false, err
	}
	return value, true, nil
}

// GetWithSeq searches for a key, additionally returning its sequence
// number and tombstone status, needed by the engine's read path to pick
// the newest version across memtables and levels (spec §4.3.1).
func (sst *SSTable) GetWithSeq(key string) ([]byte, uint64, bool, bool, error) {
	if !sst.bloomFilter.MayContain(key) {
		return nil, 0, false, false, nil
	}

	blockIdx := sort.Search(len(sst.index), func(i int) bool {
		return sst.index[i].Key > key
	})
	if blockIdx == 0 {
		return nil, 0, false, false, nil
	}
	blockIdx--

	entries, err := sst.decodeBlock(sst.index[blockIdx])
	if err != nil {
		return nil, 0, false, false, err
	}

	for _, e := range entries {
		if e.Key == key {
			return e.Value, e.SeqNum, e.Deleted, true, nil
		}
		if e.Key > key {
			break
		}
	}
	return nil, 0, false, false, nil
}

// Overlaps checks if this SSTable's key range overlaps with [start, end].
func (sst *SSTable) Overlaps(start, end string) bool {
	if start != "" && sst.maxKey < start {
		return false
	}
	if end != "" && sst.minKey > end {
		return false
	}
	return true
}

// Close closes the SSTable file.
func (sst *SSTable) Close() error {
	if sst.file != nil {
		return sst.file.Close()
	}
	return nil
}

// Remove deletes the SSTable file.
func (sst *SSTable) Remove() error {
	sst.Close()
	return os.Remove(sst.path)
}

// MinKey returns the smallest key in the SSTable.
func (sst *SSTable) MinKey() string { return sst.minKey }

// MaxKey returns the largest key in the SSTable.
func (sst *SSTable) MaxKey() string { return sst.maxKey }

// Level returns the level of this SSTable.
func (sst *SSTable) Level() int { return sst.level }

// FileNum returns the file number of this SSTable.
func (sst *SSTable) FileNum() uint64 { return sst.fileNum }

// Path returns the file path.
func (sst *SSTable) Path() string { return sst.path }

// MinSeq returns the smallest sequence number stored in this file.
func (sst *SSTable) MinSeq() uint64 { return sst.minSeq }

// MaxSeq returns the largest sequence number stored in this file.
func (sst *SSTable) MaxSeq() uint64 { return sst.maxSeq }

// EntryCount returns the number of entries (including tombstones) stored.
func (sst *SSTable) EntryCount() uint64 { return sst.entryCount }

// ApproxSize returns the on-disk file size in bytes, used by the level
// manager's byte-budget compaction trigger (spec §4.3.3).
func (sst *SSTable) ApproxSize() int64 { return sst.fileSize }

// NewIterator returns a raw block-level iterator over every entry in the
// file, including tombstones, in ascending key order (used by compaction).
func (sst *SSTable) NewIterator() (*SSTableIterator, error) {
	return NewSSTableIterator(sst, 0)
}

// AllEntries decodes every block in the file into a flat, ascending-order
// slice, for use by the merging scan iterator (spec §4.5).
func (sst *SSTable) AllEntries() ([]MemTableEntry, error) {
	it, err := NewSSTableIterator(sst, 0)
	if err != nil {
		return nil, err
	}
	var entries []MemTableEntry
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, MemTableEntry{Key: e.Key, Value: e.Value, Sequence: e.Sequence, Deleted: e.Deleted})
	}
	return entries, nil
}

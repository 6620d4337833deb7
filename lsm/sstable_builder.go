package lsm

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
)

// blockHeaderSize is the 24-byte data-block header (spec §6): block_type,
// compressed_size, uncompressed_size, crc32, entry_count, reserved.
const blockHeaderSize = 24

// entryHeaderSize is the fixed portion of a data-block entry (spec §6):
// key_len, value_len, seq_num, deleted, 7 bytes padding.
const entryHeaderSize = 4 + 4 + 8 + 1 + 7

const blockTypeData uint32 = 1

// pendingEntry is one (key, value, seq, deleted) tuple buffered before its
// block is finalized.
type pendingEntry struct {
	key     string
	value   []byte
	seq     uint64
	deleted bool
}

// SSTableBuilder constructs a new SSTable from entries supplied in sorted
// key order (spec §4.3.2). Entries accumulate until the buffer reaches
// blockSize, at which point the block is serialized, optionally
// compressed, and written at the current file offset; the first key of
// each finalized block is recorded in the index.
type SSTableBuilder struct {
	file        *os.File
	path        string
	compression CompressionType
	codec       compressor

	pending     []pendingEntry
	pendingSize int // raw encoded size of buffered entries

	blockOffset uint64
	index       []IndexEntry
	bloomFilter *BloomFilter

	minKey     string
	maxKey     string
	minSeq     uint64
	maxSeq     uint64
	numEntries int
}

// NewSSTableBuilder creates a builder writing to path with no compression.
func NewSSTableBuilder(path string, expectedKeys int) (*SSTableBuilder, error) {
	return NewSSTableBuilderWithCompression(path, expectedKeys, CompressionNone)
}

// NewSSTableBuilderWithCompression creates a builder using the given
// block codec (spec §6: lsm.compression).
func NewSSTableBuilderWithCompression(path string, expectedKeys int, compression CompressionType) (*SSTableBuilder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sstable: %w", err)
	}
	codec, err := newCompressor(compression)
	if err != nil {
		file.Close()
		return nil, err
	}
	if expectedKeys <= 0 {
		expectedKeys = 1
	}
	return &SSTableBuilder{
		file:        file,
		path:        path,
		compression: compression,
		codec:       codec,
		bloomFilter: NewBloomFilter(expectedKeys, 0.01),
	}, nil
}

// Add appends a key-value pair (or tombstone, when deleted is true) tagged
// with seq. Callers MUST supply keys in ascending sorted order.
func (b *SSTableBuilder) Add(key string, value []byte, seq uint64, deleted bool) error {
	if b.numEntries == 0 {
		b.minKey = key
		b.minSeq = seq
		b.maxSeq = seq
	}
	b.maxKey = key
	if seq < b.minSeq {
		b.minSeq = seq
	}
	if seq > b.maxSeq {
		b.maxSeq = seq
	}
	b.numEntries++
	b.bloomFilter.Add(key)

	entrySize := entryHeaderSize + len(key) + len(value)
	if b.pendingSize+entrySize > blockSize && len(b.pending) > 0 {
		if err := b.flushBlock(); err != nil {
			return err
		}
	}

	b.pending = append(b.pending, pendingEntry{key: key, value: value, seq: seq, deleted: deleted})
	b.pendingSize += entrySize
	return nil
}

// encodeRawBlock serializes the buffered entries back-to-back, each
// prefixed by its fixed entry header (spec §6's data-entry layout).
func (b *SSTableBuilder) encodeRawBlock() []byte {
	buf := make([]byte, 0, b.pendingSize)
	for _, e := range b.pending {
		header := make([]byte, entryHeaderSize)
		binary.LittleEndian.PutUint32(header[0:], uint32(len(e.key)))
		binary.LittleEndian.PutUint32(header[4:], uint32(len(e.value)))
		binary.LittleEndian.PutUint64(header[8:], e.seq)
		if e.deleted {
			header[16] = 1
		}
		buf = append(buf, header...)
		buf = append(buf, e.key...)
		buf = append(buf, e.value...)
	}
	return buf
}

// flushBlock compresses and writes the buffered entries as one data
// block, prefixed by its 24-byte header, and records the block's first
// key in the index.
func (b *SSTableBuilder) flushBlock() error {
	if len(b.pending) == 0 {
		return nil
	}

	raw := b.encodeRawBlock()
	compressed, err := b.codec.Compress(raw)
	if err != nil {
		return fmt.Errorf("failed to compress block: %w", err)
	}

	header := make([]byte, blockHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], blockTypeData)
	binary.LittleEndian.PutUint32(header[4:], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(header[8:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(header[12:], crc32.ChecksumIEEE(compressed))
	binary.LittleEndian.PutUint32(header[16:], uint32(len(b.pending)))

	firstKey := b.pending[0].key
	blockOffset := b.blockOffset

	if _, err := b.file.Write(header); err != nil {
		return fmt.Errorf("failed to write block header: %w", err)
	}
	if _, err := b.file.Write(compressed); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}

	b.index = append(b.index, IndexEntry{
		Key:         firstKey,
		BlockOffset: blockOffset,
		BlockSize:   uint32(len(header) + len(compressed)),
		SeqNum:      b.pending[0].seq,
	})
	b.blockOffset += uint64(len(header) + len(compressed))

	b.pending = b.pending[:0]
	b.pendingSize = 0
	return nil
}

// Finish flushes any partial block, writes the index and bloom-filter
// blocks, then the fixed 64-byte footer (spec §4.3.2, §6).
func (b *SSTableBuilder) Finish() error {
	if len(b.pending) > 0 {
		if err := b.flushBlock(); err != nil {
			return err
		}
	}

	indexOffset := b.blockOffset
	indexData := b.encodeIndex()
	if _, err := b.file.Write(indexData); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	b.blockOffset += uint64(len(indexData))

	bloomOffset := b.blockOffset
	bloomData := b.bloomFilter.Encode()
	if _, err := b.file.Write(bloomData); err != nil {
		return fmt.Errorf("failed to write bloom filter: %w", err)
	}
	b.blockOffset += uint64(len(bloomData))

	footer := encodeFooter(footerFields{
		IndexOffset: indexOffset,
		IndexSize:   uint32(len(indexData)),
		BloomOffset: bloomOffset,
		BloomSize:   uint32(len(bloomData)),
		MinSeq:      b.minSeq,
		MaxSeq:      b.maxSeq,
		EntryCount:  uint64(b.numEntries),
	})
	if _, err := b.file.Write(footer); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}

	if err := b.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync sstable: %w", err)
	}
	return b.file.Close()
}

// encodeIndex encodes the index block (spec §6's index-entry layout:
// key_len, block_offset, block_size, seq_num, key bytes), prefixed by a
// numEntries(4) count matching the data-block framing convention.
func (b *SSTableBuilder) encodeIndex() []byte {
	size := 4
	for _, e := range b.index {
		size += 4 + 8 + 4 + 8 + len(e.Key)
	}
	buf := make([]byte, size)
	offset := 0
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(b.index)))
	offset += 4
	for _, e := range b.index {
		binary.LittleEndian.PutUint32(buf[offset:], uint32(len(e.Key)))
		offset += 4
		binary.LittleEndian.PutUint64(buf[offset:], e.BlockOffset)
		offset += 8
		binary.LittleEndian.PutUint32(buf[offset:], e.BlockSize)
		offset += 4
		binary.LittleEndian.PutUint64(buf[offset:], e.SeqNum)
		offset += 8
		copy(buf[offset:], e.Key)
		offset += len(e.Key)
	}
	return buf
}

// Abort discards a partially-written SSTable, closing and removing the
// file.
func (b *SSTableBuilder) Abort() error {
	b.file.Close()
	return os.Remove(b.path)
}

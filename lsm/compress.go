package lsm

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the block compression codec (spec §4.3.2:
// "optionally compressed (none/LZ4/Snappy)"; spec §6's config key
// lsm.compression).
type CompressionType uint32

const (
	CompressionNone CompressionType = iota
	CompressionLZ4
	CompressionSnappy
)

// ParseCompressionType maps a config string to its CompressionType.
func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "snappy":
		return CompressionSnappy, nil
	default:
		return CompressionNone, fmt.Errorf("lsm: unknown compression %q", s)
	}
}

// compressor compresses/decompresses a single data block. Grounded on
// 0xReLogic-River's Compressor interface, extended here to take the known
// uncompressed size on Decompress rather than guessing a destination
// buffer size.
type compressor interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, uncompressedSize int) ([]byte, error)
}

func newCompressor(t CompressionType) (compressor, error) {
	switch t {
	case CompressionNone:
		return noneCompressor{}, nil
	case CompressionLZ4:
		return lz4Compressor{}, nil
	case CompressionSnappy:
		return snappyCompressor{}, nil
	default:
		return nil, fmt.Errorf("lsm: unknown compression type %d", t)
	}
}

type noneCompressor struct{}

func (noneCompressor) Compress(src []byte) ([]byte, error) { return src, nil }
func (noneCompressor) Decompress(src []byte, _ int) ([]byte, error) {
	return src, nil
}

// lz4Compressor implements compressor over github.com/pierrec/lz4/v4's
// block API, grounded on 0xReLogic-River/internal/data/compress/lz4.go,
// fixed to pass the block header's recorded uncompressed size into
// UncompressBlock's destination buffer instead of a 10x heuristic.
type lz4Compressor struct{}

func (lz4Compressor) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible input; lz4 declines to emit a block. Fall back to
		// storing the raw bytes, matching the length-prefixed check the
		// reader performs (compressed_size == uncompressed_size => raw).
		return src, nil
	}
	return dst[:n], nil
}

func (lz4Compressor) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	if len(src) == uncompressedSize {
		return src, nil
	}
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

type snappyCompressor struct{}

func (snappyCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCompressor) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	dst := make([]byte, uncompressedSize)
	return snappy.Decode(dst, src)
}

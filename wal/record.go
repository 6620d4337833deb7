// Package wal implements the shared write-ahead log used by every
// durable engine: record framing, fsync policy, segment rotation, and
// crash-tolerant replay (spec §4.3.5 and §6's WAL record layout).
package wal

import (
	"encoding/binary"
	"hash/crc32"
)

// RecordType tags a WAL record. Spec §6: 1=PUT, 2=DELETE, 3=CHECKPOINT,
// 4=COMMIT.
type RecordType uint32

const (
	RecordPut RecordType = iota + 1
	RecordDelete
	RecordCheckpoint
	RecordCommit
)

// HeaderSize is the fixed 32-byte record header: type, seq_num,
// timestamp_us, key_len, value_len, crc32.
const HeaderSize = 4 + 8 + 8 + 4 + 4 + 4

// Record is one WAL entry. Checkpoint/Commit records carry no key/value.
type Record struct {
	Type      RecordType
	SeqNum    uint64
	TimestampUs uint64
	Key       []byte
	Value     []byte
}

// Encode serializes r into the spec's 32-byte-header wire format. CRC32
// (IEEE 802.3, reflected polynomial 0xEDB88320 -- hash/crc32.ChecksumIEEE)
// covers the key and value bytes only, per spec §6 and the explicit
// correction in spec §9 of the source's placeholder checksum.
func (r Record) Encode() []byte {
	buf := make([]byte, HeaderSize+len(r.Key)+len(r.Value))
	binary.LittleEndian.PutUint32(buf[0:], uint32(r.Type))
	binary.LittleEndian.PutUint64(buf[4:], r.SeqNum)
	binary.LittleEndian.PutUint64(buf[12:], r.TimestampUs)
	binary.LittleEndian.PutUint32(buf[20:], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(buf[24:], uint32(len(r.Value)))

	payload := buf[HeaderSize:]
	copy(payload, r.Key)
	copy(payload[len(r.Key):], r.Value)

	crc := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(buf[28:], crc)
	return buf
}

// DecodeHeader parses the fixed header portion of a record.
func DecodeHeader(buf []byte) (typ RecordType, seqNum, timestampUs uint64, keyLen, valueLen, crc uint32) {
	typ = RecordType(binary.LittleEndian.Uint32(buf[0:]))
	seqNum = binary.LittleEndian.Uint64(buf[4:])
	timestampUs = binary.LittleEndian.Uint64(buf[12:])
	keyLen = binary.LittleEndian.Uint32(buf[20:])
	valueLen = binary.LittleEndian.Uint32(buf[24:])
	crc = binary.LittleEndian.Uint32(buf[28:])
	return
}

// VerifyPayloadCRC checks payload (key||value) against the stored crc.
func VerifyPayloadCRC(payload []byte, crc uint32) bool {
	return crc32.ChecksumIEEE(payload) == crc
}

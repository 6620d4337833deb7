package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ReplayFunc is invoked once per successfully verified record during
// replay, in recovery mode (spec §4.3.5: "recovery mode suppresses further
// WAL writes" -- it is the caller's responsibility not to re-append while
// inside this callback).
type ReplayFunc func(Record) error

// ReplayAll reads every segment under dir in ascending sequence order and
// invokes fn for each verified record. A CRC mismatch or a truncated tail
// stops replay of that segment cleanly: records before the tear are kept,
// the torn record is discarded, and replay continues with the next
// segment (spec §4.3.5, §7).
func ReplayAll(dir string, log *zap.Logger, fn ReplayFunc) error {
	if log == nil {
		log = zap.NewNop()
	}
	seqs, err := Segments(dir)
	if err != nil {
		return err
	}

	for _, seq := range seqs {
		path := filepath.Join(dir, SegmentName(seq))
		if err := replaySegment(path, seq, log, fn); err != nil {
			return err
		}
	}
	return nil
}

func replaySegment(path string, seq uint64, log *zap.Logger, fn ReplayFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("wal: open segment %d for replay: %w", seq, err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	for {
		n, err := io.ReadFull(f, header)
		if err == io.EOF {
			return nil
		}
		if err != nil || n < HeaderSize {
			log.Warn("wal replay: truncated header, stopping segment", zap.Uint64("segment", seq))
			return nil
		}

		typ, seqNum, ts, keyLen, valueLen, crc := DecodeHeader(header)
		payloadLen := int(keyLen) + int(valueLen)
		payload := make([]byte, payloadLen)
		if payloadLen > 0 {
			if _, err := io.ReadFull(f, payload); err != nil {
				log.Warn("wal replay: torn tail, discarding record", zap.Uint64("segment", seq))
				return nil
			}
		}

		if !VerifyPayloadCRC(payload, crc) {
			log.Warn("wal replay: crc mismatch, discarding torn record", zap.Uint64("segment", seq), zap.Uint64("seq_num", seqNum))
			return nil
		}

		rec := Record{
			Type:        RecordType(typ),
			SeqNum:      seqNum,
			TimestampUs: ts,
			Key:         payload[:keyLen],
			Value:       payload[keyLen : keyLen+valueLen],
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("wal: replay callback: %w", err)
		}
	}
}


// Package rangequery implements the spec's Range-Query Manager (spec
// §4.5): a thin layer over any common.StorageEngine that unifies
// range/prefix scans whether or not the underlying engine exposes a
// native RangeScanner/PrefixScanner, honoring limit/offset/reverse/
// keys_only/count_only/timeout_ms and cursor-style pagination.
//
// Grounded on btree.Iterator and lsm's iteratorAdapter for the
// cursor shape consumed when an engine has no native scan primitive.
package rangequery

import (
	"time"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

// Options controls a scan beyond its key range (spec §4.5).
type Options struct {
	Limit      int  // 0 means unlimited
	Offset     int  // entries to skip before the first emitted pair
	Reverse    bool // emit in descending key order
	KeysOnly   bool // drop Value from emitted pairs
	CountOnly  bool // don't materialize pairs, only count matches
	TimeoutMs  int  // soft budget; 0 disables the check
}

// Result is the outcome of a range or prefix scan.
type Result struct {
	Pairs        []common.KVPair
	Count        int
	NextStartKey []byte
	HasMore      bool
	TimedOut     bool
}

// Manager wraps a single engine and serves every scan against it.
type Manager struct {
	engine common.StorageEngine
}

// New wraps engine for unified range/prefix scanning.
func New(engine common.StorageEngine) *Manager {
	return &Manager{engine: engine}
}

// RangeScan returns pairs whose keys satisfy [start,end) or [start,end]
// per the inclusive flags, applying opts on top of whatever the engine
// (or, lacking that, its iterator) can natively produce.
func (m *Manager) RangeScan(start, end []byte, startInclusive, endInclusive bool, opts Options) (*Result, error) {
	return m.scan(start, end, startInclusive, endInclusive, opts)
}

// PrefixScan returns pairs whose key starts with prefix. Engines with a
// native PrefixScanner are used directly; otherwise the exclusive upper
// bound is computed (spec §4.5: increment the last non-0xFF byte) and a
// range scan is run in its place.
func (m *Manager) PrefixScan(prefix []byte, opts Options) (*Result, error) {
	if ps, ok := m.engine.(common.PrefixScanner); ok && !opts.Reverse && opts.Offset == 0 {
		fetchLimit := scanFetchLimit(opts)
		pairs, err := ps.PrefixScan(prefix, fetchLimit)
		if err != nil {
			return nil, err
		}
		return finish(pairs, opts, false), nil
	}

	upper, ok := common.NextKeyUpperBound(prefix)
	if !ok {
		return m.scan(prefix, nil, true, false, opts)
	}
	return m.scan(prefix, upper, true, false, opts)
}

func scanFetchLimit(opts Options) int {
	if opts.Limit <= 0 || opts.Reverse {
		return 0
	}
	return opts.Offset + opts.Limit
}

func (m *Manager) scan(start, end []byte, startInclusive, endInclusive bool, opts Options) (*Result, error) {
	var deadline time.Time
	if opts.TimeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(opts.TimeoutMs) * time.Millisecond)
	}
	fetchLimit := scanFetchLimit(opts)

	var (
		pairs    []common.KVPair
		timedOut bool
	)

	switch e := m.engine.(type) {
	case common.RangeScanner:
		// A native range scanner has no mid-scan timeout hook; the
		// deadline is only meaningful for the iterator fallback below,
		// so a native scan either completes or errors.
		var err error
		pairs, err = e.RangeScan(start, end, startInclusive, endInclusive, fetchLimit)
		if err != nil {
			return nil, err
		}
	default:
		ig, ok := m.engine.(common.IteratorFactory)
		if !ok {
			return nil, common.NewError(common.KindParam, "engine does not support range scan")
		}
		it, err := ig.NewIterator()
		if err != nil {
			return nil, err
		}
		defer it.Close()

		for it.Next() {
			if !deadline.IsZero() && time.Now().After(deadline) {
				timedOut = true
				break
			}
			key := it.Key()
			if start != nil {
				c := common.CompareKeys(key, start)
				if (startInclusive && c < 0) || (!startInclusive && c <= 0) {
					continue
				}
			}
			if end != nil {
				c := common.CompareKeys(key, end)
				if (endInclusive && c > 0) || (!endInclusive && c >= 0) {
					break
				}
			}
			pairs = append(pairs, common.KVPair{
				Key:   append([]byte(nil), key...),
				Value: append([]byte(nil), it.Value()...),
			})
			if fetchLimit > 0 && len(pairs) >= fetchLimit {
				break
			}
		}
		if err := it.Error(); err != nil {
			return nil, err
		}
	}

	res := finish(pairs, opts, timedOut)
	return res, nil
}

// finish applies reverse/offset/limit/keys_only/count_only to a raw
// ascending match list and builds the pagination cursor.
func finish(pairs []common.KVPair, opts Options, timedOut bool) *Result {
	if opts.Reverse {
		for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
			pairs[i], pairs[j] = pairs[j], pairs[i]
		}
	}

	total := len(pairs)
	if opts.Offset > 0 {
		if opts.Offset >= len(pairs) {
			pairs = nil
		} else {
			pairs = pairs[opts.Offset:]
		}
	}

	hasMore := timedOut
	if opts.Limit > 0 && len(pairs) > opts.Limit {
		pairs = pairs[:opts.Limit]
		hasMore = true
	} else if opts.Limit > 0 && opts.Offset+len(pairs) == total && total == opts.Offset+opts.Limit {
		// The underlying scan was capped exactly at fetchLimit; there may
		// be more beyond what was fetched, so the cursor stays open.
		hasMore = true
	}

	res := &Result{Count: total, TimedOut: timedOut, HasMore: hasMore}
	if opts.CountOnly {
		return res
	}

	if opts.KeysOnly {
		for i := range pairs {
			pairs[i].Value = nil
		}
	}
	res.Pairs = pairs
	if len(pairs) > 0 {
		res.NextStartKey = append([]byte(nil), pairs[len(pairs)-1].Key...)
	}
	return res
}

package rangequery

import (
	"testing"

	"github.com/Lzww0608/ConcordKV-sub001/arrayengine"
	"github.com/Lzww0608/ConcordKV-sub001/common"
	"github.com/Lzww0608/ConcordKV-sub001/rbtree"
)

func TestRangeScanOrderAndBounds(t *testing.T) {
	e := rbtree.New()
	for i := 0; i < 10; i++ {
		e.Put([]byte{'k', byte('0' + i)}, []byte("v"))
	}
	m := New(e)
	res, err := m.RangeScan([]byte("k3"), []byte("k7"), true, false, Options{Limit: 10})
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	want := []string{"k3", "k4", "k5", "k6"}
	if len(res.Pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %d", len(want), len(res.Pairs))
	}
	for i, w := range want {
		if string(res.Pairs[i].Key) != w {
			t.Fatalf("pair %d: expected %q, got %q", i, w, res.Pairs[i].Key)
		}
	}
}

func TestPrefixScanUpperBound(t *testing.T) {
	e := rbtree.New()
	for _, k := range []string{"a", "ab", "ac", "b"} {
		e.Put([]byte(k), []byte("v"))
	}
	m := New(e)
	res, err := m.PrefixScan([]byte("a"), Options{})
	if err != nil {
		t.Fatalf("PrefixScan: %v", err)
	}
	if len(res.Pairs) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(res.Pairs))
	}

	// All-0xFF prefix has no finite upper bound; must not infinite-loop.
	e.Put([]byte{0xFF, 0xFF}, []byte("v"))
	res2, err := m.PrefixScan([]byte{0xFF, 0xFF}, Options{})
	if err != nil {
		t.Fatalf("PrefixScan all-0xFF: %v", err)
	}
	if len(res2.Pairs) != 1 {
		t.Fatalf("expected 1 match for all-0xFF prefix, got %d", len(res2.Pairs))
	}
}

func TestPaginationOffsetLimitReverse(t *testing.T) {
	e := rbtree.New()
	for i := 0; i < 10; i++ {
		e.Put([]byte{'k', byte('0' + i)}, []byte("v"))
	}
	m := New(e)

	res, err := m.RangeScan(nil, nil, true, false, Options{Limit: 3, Offset: 2})
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(res.Pairs) != 3 || string(res.Pairs[0].Key) != "k2" {
		t.Fatalf("unexpected page: %+v", res.Pairs)
	}
	if !res.HasMore {
		t.Fatalf("expected HasMore true")
	}
	if string(res.NextStartKey) != "k4" {
		t.Fatalf("expected next_start_key k4, got %q", res.NextStartKey)
	}

	rev, err := m.RangeScan(nil, nil, true, false, Options{Reverse: true, Limit: 2})
	if err != nil {
		t.Fatalf("RangeScan reverse: %v", err)
	}
	if len(rev.Pairs) != 2 || string(rev.Pairs[0].Key) != "k9" {
		t.Fatalf("unexpected reverse page: %+v", rev.Pairs)
	}
}

func TestKeysOnlyAndCountOnly(t *testing.T) {
	e := rbtree.New()
	e.Put([]byte("a"), []byte("1"))
	e.Put([]byte("b"), []byte("2"))
	m := New(e)

	ko, err := m.RangeScan(nil, nil, true, false, Options{KeysOnly: true})
	if err != nil {
		t.Fatalf("RangeScan keys-only: %v", err)
	}
	for _, p := range ko.Pairs {
		if p.Value != nil {
			t.Fatalf("expected nil value in keys-only mode, got %v", p.Value)
		}
	}

	co, err := m.RangeScan(nil, nil, true, false, Options{CountOnly: true})
	if err != nil {
		t.Fatalf("RangeScan count-only: %v", err)
	}
	if co.Count != 2 || co.Pairs != nil {
		t.Fatalf("expected count 2 and no pairs, got count=%d pairs=%v", co.Count, co.Pairs)
	}
}

func TestUnorderedEngineWithoutIteratorReturnsParam(t *testing.T) {
	e := arrayengine.New()
	e.Put([]byte("x"), []byte("1"))
	m := New(e)
	_, err := m.RangeScan(nil, nil, true, false, Options{})
	if common.ErrorKind(err) != common.KindParam {
		t.Fatalf("expected PARAM for an engine with no range/iterator support, got %v", err)
	}
}

func TestUnorderedEnginePrefixScanStillWorks(t *testing.T) {
	e := arrayengine.New()
	e.Put([]byte("user:1"), []byte("a"))
	e.Put([]byte("user:2"), []byte("b"))
	e.Put([]byte("product:1"), []byte("c"))
	m := New(e)
	res, err := m.PrefixScan([]byte("user:"), Options{})
	if err != nil {
		t.Fatalf("expected the array engine's linear PrefixScan to serve this, got %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("expected 2 matches, got %d", res.Count)
	}
}

package btree

import (
	"fmt"
	"testing"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	tr, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tr.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := tr.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "1" {
		t.Fatalf("got %q, want %q", v, "1")
	}

	if err := tr.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tr.Get([]byte("a")); common.ErrorKind(err) != common.KindNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestPutOverwritesExisting(t *testing.T) {
	tr, _ := New(DefaultConfig())
	tr.Put([]byte("k"), []byte("v1"))
	tr.Put([]byte("k"), []byte("v2"))

	v, err := tr.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v2" {
		t.Fatalf("got %q, want v2", v)
	}
	if tr.Count() != 1 {
		t.Fatalf("expected count 1, got %d", tr.Count())
	}
}

func TestUpdateRequiresExisting(t *testing.T) {
	tr, _ := New(DefaultConfig())
	if err := tr.Update([]byte("missing"), []byte("v")); common.ErrorKind(err) != common.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	tr.Put([]byte("k"), []byte("v1"))
	if err := tr.Update([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	v, _ := tr.Get([]byte("k"))
	if string(v) != "v2" {
		t.Fatalf("got %q, want v2", v)
	}
}

// TestManyInsertsForcesSplits drives enough inserts through a small-order
// tree to force repeated leaf and internal splits, then checks every key
// is still reachable in order.
func TestManyInsertsForcesSplits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Order = 4
	cfg.HotNodeCache = false
	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 500
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		if err := tr.Put(key, []byte(fmt.Sprintf("val-%d", i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	if tr.Count() != n {
		t.Fatalf("expected %d keys, got %d", n, tr.Count())
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		v, err := tr.Get(key)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		want := fmt.Sprintf("val-%d", i)
		if string(v) != want {
			t.Fatalf("Get(%d) = %q, want %q", i, v, want)
		}
	}

	pairs, err := tr.RangeScan(nil, nil, true, false, 0)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(pairs) != n {
		t.Fatalf("RangeScan returned %d pairs, want %d", len(pairs), n)
	}
	for i := 1; i < len(pairs); i++ {
		if compareBytes(pairs[i-1].Key, pairs[i].Key) >= 0 {
			t.Fatalf("RangeScan out of order at %d: %q >= %q", i, pairs[i-1].Key, pairs[i].Key)
		}
	}
}

// TestDeleteAllForcesMergesAndShrinksRoot inserts then deletes a run of
// keys in a small-order tree, exercising borrow and merge (including
// internal-node merge, which the reference implementation this package
// is grounded on never implemented), and checks the tree ends empty with
// a single leaf root.
func TestDeleteAllForcesMergesAndShrinksRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Order = 4
	cfg.HotNodeCache = false
	tr, _ := New(cfg)

	const n = 300
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		tr.Put(key, []byte("v"))
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		if err := tr.Delete(key); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}
	if tr.Count() != 0 {
		t.Fatalf("expected 0 keys after deleting all, got %d", tr.Count())
	}
	root := tr.n(tr.getRoot())
	if !root.isLeaf {
		t.Fatalf("expected root to shrink back to a single leaf, got internal node")
	}
	if len(root.keys) != 0 {
		t.Fatalf("expected empty root leaf, got %d keys", len(root.keys))
	}
}

func TestDeleteInterleavedWithInsertsKeepsTreeConsistent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Order = 5
	cfg.HotNodeCache = false
	tr, _ := New(cfg)

	present := map[string]bool{}
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%04d", i)
		tr.Put([]byte(key), []byte(key))
		present[key] = true
		if i%3 == 0 {
			del := fmt.Sprintf("k%04d", i/2)
			if present[del] {
				if err := tr.Delete([]byte(del)); err != nil {
					t.Fatalf("Delete(%s): %v", del, err)
				}
				delete(present, del)
			}
		}
	}

	for key, want := range present {
		if !want {
			continue
		}
		v, err := tr.Get([]byte(key))
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if string(v) != key {
			t.Fatalf("Get(%s) = %q", key, v)
		}
	}
	if int(tr.Count()) != len(present) {
		t.Fatalf("Count() = %d, want %d", tr.Count(), len(present))
	}
}

func TestPrefixScan(t *testing.T) {
	tr, _ := New(DefaultConfig())
	tr.Put([]byte("user:1"), []byte("a"))
	tr.Put([]byte("user:2"), []byte("b"))
	tr.Put([]byte("order:1"), []byte("c"))

	pairs, err := tr.PrefixScan([]byte("user:"), 0)
	if err != nil {
		t.Fatalf("PrefixScan: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
}

func TestPutEmptyKeyRejected(t *testing.T) {
	tr, _ := New(DefaultConfig())
	if err := tr.Put(nil, []byte("v")); common.ErrorKind(err) != common.KindParam {
		t.Fatalf("expected param error, got %v", err)
	}
}

func TestNewIteratorOrdersAllKeys(t *testing.T) {
	tr, _ := New(DefaultConfig())
	keys := []string{"c", "a", "b"}
	for _, k := range keys {
		tr.Put([]byte(k), []byte(k))
	}
	it, err := tr.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

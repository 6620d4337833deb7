package arrayengine

import (
	"errors"
	"testing"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	e := New()
	if err := e.Put([]byte("apple"), []byte("red")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := e.Get([]byte("apple"))
	if err != nil || string(v) != "red" {
		t.Fatalf("Get: %v %v", v, err)
	}
	if e.Count() != 1 {
		t.Fatalf("expected count 1, got %d", e.Count())
	}
	if err := e.Delete([]byte("apple")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.Get([]byte("apple")); !errors.Is(err, common.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestPutOverwritesExisting(t *testing.T) {
	e := New()
	e.Put([]byte("x"), []byte("1"))
	e.Put([]byte("x"), []byte("2"))
	if e.Count() != 1 {
		t.Fatalf("expected count 1 after overwrite, got %d", e.Count())
	}
	v, _ := e.Get([]byte("x"))
	if string(v) != "2" {
		t.Fatalf("expected 2, got %s", v)
	}
}

func TestUpdateRequiresExisting(t *testing.T) {
	e := New()
	if err := e.Update([]byte("x"), []byte("1")); !errors.Is(err, common.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	e.Put([]byte("x"), []byte("1"))
	if err := e.Update([]byte("x"), []byte("2")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	v, _ := e.Get([]byte("x"))
	if string(v) != "2" {
		t.Fatalf("expected 2, got %s", v)
	}
}

func TestDeleteSwapWithLastPreservesOthers(t *testing.T) {
	e := New()
	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		e.Put([]byte(k), []byte(k))
	}
	if err := e.Delete([]byte("b")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, k := range []string{"a", "c", "d", "e"} {
		v, err := e.Get([]byte(k))
		if err != nil || string(v) != k {
			t.Fatalf("key %q missing after unrelated delete: %v %v", k, v, err)
		}
	}
	if _, err := e.Get([]byte("b")); !errors.Is(err, common.ErrKeyNotFound) {
		t.Fatalf("expected b to be gone")
	}
	if e.Count() != 4 {
		t.Fatalf("expected count 4, got %d", e.Count())
	}
}

func TestPutEmptyKeyRejected(t *testing.T) {
	e := New()
	if err := e.Put(nil, []byte("v")); !errors.Is(err, common.ErrKeyEmpty) {
		t.Fatalf("expected ErrKeyEmpty, got %v", err)
	}
}

func TestPrefixScanFiltersLinearly(t *testing.T) {
	e := New()
	e.Put([]byte("user:1"), []byte("a"))
	e.Put([]byte("user:2"), []byte("b"))
	e.Put([]byte("product:1"), []byte("c"))
	e.Delete([]byte("user:2"))

	got, err := e.PrefixScan([]byte("user:"), 0)
	if err != nil {
		t.Fatalf("PrefixScan: %v", err)
	}
	if len(got) != 1 || string(got[0].Key) != "user:1" {
		t.Fatalf("expected only live user:1, got %+v", got)
	}
}

func TestPrefixScanRespectsLimit(t *testing.T) {
	e := New()
	e.Put([]byte("a:1"), []byte("1"))
	e.Put([]byte("a:2"), []byte("2"))
	e.Put([]byte("a:3"), []byte("3"))

	got, err := e.PrefixScan([]byte("a:"), 2)
	if err != nil {
		t.Fatalf("PrefixScan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2 results, got %d", len(got))
	}
}

func TestStatsTrackOperations(t *testing.T) {
	e := New()
	e.Put([]byte("a"), []byte("1"))
	e.Get([]byte("a"))
	e.Delete([]byte("a"))
	s := e.Stats()
	if s.WriteCount != 1 || s.ReadCount != 1 || s.DeleteCount != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

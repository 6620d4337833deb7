package rbtree

import (
	"errors"
	"testing"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

func TestEnginePutGetDeleteRoundTrip(t *testing.T) {
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
	if e.Count() != 0 {
		t.Fatalf("expected count 0 after delete, got %d", e.Count())
	}
}

func TestEngineUpdateRequiresExisting(t *testing.T) {
	e := New()
	if err := e.Update([]byte("x"), []byte("1")); !errors.Is(err, common.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound on update of absent key, got %v", err)
	}
	e.Put([]byte("x"), []byte("1"))
	if err := e.Update([]byte("x"), []byte("2")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	v, _ := e.Get([]byte("x"))
	if string(v) != "2" {
		t.Fatalf("expected updated value 2, got %s", v)
	}
}

func TestEngineRangeAndPrefixScan(t *testing.T) {
	e := New()
	for i := 0; i < 10; i++ {
		key := []byte{'k', byte('0' + i)}
		e.Put(key, []byte("v"))
	}
	e.Put([]byte("userX"), []byte("distractor"))
	for i := 0; i < 10; i++ {
		e.Put([]byte("user:"+string(rune('0'+i))), []byte("v"))
	}

	pairs, err := e.RangeScan([]byte("k3"), []byte("k7"), true, false, 10)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(pairs) != 4 {
		t.Fatalf("expected 4 pairs, got %d", len(pairs))
	}

	pfx, err := e.PrefixScan([]byte("user:"), 0)
	if err != nil {
		t.Fatalf("PrefixScan: %v", err)
	}
	if len(pfx) != 10 {
		t.Fatalf("expected 10 prefix matches, got %d", len(pfx))
	}
}

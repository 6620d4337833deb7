package rbtree

import (
	"math/rand"
	"sort"
	"testing"
)

func TestTreeUpsertGetDelete(t *testing.T) {
	tr := NewTree[int]()
	tr.Upsert([]byte("b"), 2)
	tr.Upsert([]byte("a"), 1)
	tr.Upsert([]byte("c"), 3)

	if v, ok := tr.Get([]byte("a")); !ok || v != 1 {
		t.Fatalf("get a: %v %v", v, ok)
	}
	if !tr.Delete([]byte("b")) {
		t.Fatal("delete b should succeed")
	}
	if _, ok := tr.Get([]byte("b")); ok {
		t.Fatal("b should be gone")
	}
	if tr.Len() != 2 {
		t.Fatalf("expected len 2, got %d", tr.Len())
	}
}

func TestTreeAscendOrder(t *testing.T) {
	tr := NewTree[int]()
	keys := []string{"k5", "k1", "k9", "k3", "k7", "k2", "k8"}
	for i, k := range keys {
		tr.Upsert([]byte(k), i)
	}

	var got []string
	tr.Ascend(nil, nil, func(key []byte, _ int) bool {
		got = append(got, string(key))
		return true
	})

	want := append([]string(nil), keys...)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestTreeAscendRange(t *testing.T) {
	tr := NewTree[int]()
	for i := 0; i < 10; i++ {
		tr.Upsert([]byte{'k', '0' + byte(i)}, i)
	}
	var got []string
	tr.Ascend([]byte("k3"), []byte("k7"), func(key []byte, _ int) bool {
		got = append(got, string(key))
		return true
	})
	want := []string{"k3", "k4", "k5", "k6"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestTreeRandomizedAgainstMap(t *testing.T) {
	tr := NewTree[int]()
	ref := make(map[string]int)
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		key := string(rune('a' + rnd.Intn(26)))
		switch rnd.Intn(3) {
		case 0, 1:
			tr.Upsert([]byte(key), i)
			ref[key] = i
		case 2:
			tr.Delete([]byte(key))
			delete(ref, key)
		}
	}

	if tr.Len() != len(ref) {
		t.Fatalf("size mismatch: tree=%d ref=%d", tr.Len(), len(ref))
	}
	for k, v := range ref {
		got, ok := tr.Get([]byte(k))
		if !ok || got != v {
			t.Fatalf("key %q: got (%v,%v) want %v", k, got, ok, v)
		}
	}
}

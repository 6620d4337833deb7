package arena

import "testing"

type node struct {
	key string
}

func TestArenaAllocGetFree(t *testing.T) {
	a := New[node](4, false)

	h1 := a.Alloc(node{key: "a"})
	h2 := a.Alloc(node{key: "b"})

	if a.Get(h1).key != "a" || a.Get(h2).key != "b" {
		t.Fatal("handles did not round-trip values")
	}
	if a.Len() != 2 {
		t.Fatalf("expected Len()=2, got %d", a.Len())
	}

	a.Free(h1)
	if a.Len() != 1 {
		t.Fatalf("expected Len()=1 after free, got %d", a.Len())
	}

	h3 := a.Alloc(node{key: "c"})
	if a.Get(h3).key != "c" {
		t.Fatal("reused handle did not hold new value")
	}
}

func TestArenaGrowsAcrossBlocks(t *testing.T) {
	a := New[node](2, true)
	handles := make([]Handle, 0, 10)
	for i := 0; i < 10; i++ {
		handles = append(handles, a.Alloc(node{key: string(rune('a' + i))}))
	}
	for i, h := range handles {
		if a.Get(h).key != string(rune('a'+i)) {
			t.Fatalf("handle %d corrupted after growth", i)
		}
	}
}

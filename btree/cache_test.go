package btree

import "testing"

func TestHotNodeCacheHitReturnsSameValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HotNodeCache = true
	cfg.HotNodeCacheSize = 16
	tr, _ := New(cfg)

	tr.Put([]byte("hot"), []byte("v1"))
	// First Get populates the cache.
	if _, err := tr.Get([]byte("hot")); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := tr.cache.lookup("hot"); !ok {
		t.Fatalf("expected cache entry after Get")
	}

	v, err := tr.Get([]byte("hot"))
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if string(v) != "v1" {
		t.Fatalf("got %q, want v1", v)
	}
}

func TestHotNodeCacheInvalidatedOnUpdate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HotNodeCache = true
	tr, _ := New(cfg)

	tr.Put([]byte("k"), []byte("v1"))
	tr.Get([]byte("k"))
	tr.Update([]byte("k"), []byte("v2"))

	if _, ok := tr.cache.lookup("k"); ok {
		t.Fatalf("expected cache entry to be invalidated on Update")
	}
	v, err := tr.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v2" {
		t.Fatalf("got %q, want v2", v)
	}
}

func TestHotNodeCacheDisabledByConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HotNodeCache = false
	tr, _ := New(cfg)
	if tr.cache != nil {
		t.Fatalf("expected no cache when HotNodeCache is false")
	}
}

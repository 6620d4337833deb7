package btree

import (
	"fmt"
	"testing"
)

// TestAdaptiveFanoutGrowsUnderHeavySplitChurn drives enough inserts
// through a tiny-order tree (guaranteeing near-constant splitting) to
// push the controller's load factor above its high water mark and
// confirms the tree's order grows.
func TestAdaptiveFanoutGrowsUnderHeavySplitChurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Order = 4
	cfg.AdaptiveFanout = true
	cfg.MinOrder = 3
	cfg.MaxOrder = 50
	cfg.AdaptEveryOps = 20
	cfg.HotNodeCache = false
	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	initial := tr.currentOrder()
	for i := 0; i < 400; i++ {
		key := []byte(fmt.Sprintf("k%05d", i))
		if err := tr.Put(key, []byte("v")); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	if tr.currentOrder() <= initial {
		t.Fatalf("expected order to grow above %d under split churn, got %d", initial, tr.currentOrder())
	}
	if tr.currentOrder() > cfg.MaxOrder {
		t.Fatalf("order %d exceeds configured max %d", tr.currentOrder(), cfg.MaxOrder)
	}
}

func TestAdaptiveFanoutDisabledKeepsOrderFixed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Order = 4
	cfg.AdaptiveFanout = false
	cfg.HotNodeCache = false
	tr, _ := New(cfg)

	for i := 0; i < 400; i++ {
		key := []byte(fmt.Sprintf("k%05d", i))
		tr.Put(key, []byte("v"))
	}
	if tr.currentOrder() != 4 {
		t.Fatalf("expected order to stay at 4, got %d", tr.currentOrder())
	}
}

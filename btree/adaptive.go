package btree

import "sync"

// fanoutController implements spec §4.2's "Adaptive fanout": every
// AdaptEveryOps operations it recomputes a load factor from recent
// split/merge activity and grows or shrinks the tree's order by 20%
// within [minOrder, maxOrder], matching the high/low water marks
// (0.85/0.35) the spec documents for rbtree-style arena growth,
// applied here to fanout instead of arena block count.
type fanoutController struct {
	mu sync.Mutex

	everyOps int
	minOrder int
	maxOrder int

	ops    int
	splits int
	merges int
}

func newFanoutController(everyOps, minOrder, maxOrder int) *fanoutController {
	return &fanoutController{
		everyOps: everyOps,
		minOrder: minOrder,
		maxOrder: maxOrder,
	}
}

const (
	fanoutHighWaterMark = 0.85
	fanoutLowWaterMark  = 0.35
	fanoutGrowFactor    = 1.2
	fanoutShrinkFactor  = 0.8
)

func (f *fanoutController) recordInsert(t *Tree) { f.record(t) }
func (f *fanoutController) recordSearch(t *Tree) { f.record(t) }
func (f *fanoutController) recordDelete(t *Tree) { f.record(t) }

func (f *fanoutController) recordSplit() {
	f.mu.Lock()
	f.splits++
	f.mu.Unlock()
}

func (f *fanoutController) recordMerge() {
	f.mu.Lock()
	f.merges++
	f.mu.Unlock()
}

// record counts one operation and, every everyOps operations, recomputes
// the tree's order from the ratio of structural churn (splits+merges) to
// operations seen: a high ratio means nodes are overflowing/underflowing
// too often and fanout should grow; a low ratio means fanout can shrink
// to improve cache locality.
func (f *fanoutController) record(t *Tree) {
	f.mu.Lock()
	f.ops++
	if f.ops < f.everyOps {
		f.mu.Unlock()
		return
	}
	churn := f.splits + f.merges
	ops := f.ops
	f.ops, f.splits, f.merges = 0, 0, 0
	f.mu.Unlock()

	load := float64(churn) / float64(ops)
	current := int(t.order.Load())
	var next int
	switch {
	case load >= fanoutHighWaterMark:
		next = int(float64(current) * fanoutGrowFactor)
	case load <= fanoutLowWaterMark:
		next = int(float64(current) * fanoutShrinkFactor)
	default:
		return
	}
	if next < f.minOrder {
		next = f.minOrder
	}
	if next > f.maxOrder {
		next = f.maxOrder
	}
	if next != current {
		t.order.Store(int64(next))
	}
}

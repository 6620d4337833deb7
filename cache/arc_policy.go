package cache

import "container/list"

// arcPolicy is Adaptive Replacement Cache (spec §4.4): two resident lists
// T1 (recent, seen once) and T2 (frequent, seen again), each paired with a
// ghost list (B1, B2) of recently evicted keys, and an adaptively-tuned
// target size p for T1. A ghost hit on insert grows or shrinks p toward
// whichever list has been proving more valuable, then admits the key into
// T2 directly.
type arcPolicy struct {
	capacity int
	p        int

	t1, t2 *list.List
	b1, b2 *list.List

	t1idx, t2idx map[string]*list.Element
	b1idx, b2idx map[string]*list.Element
}

func newARCPolicy(capacity int) *arcPolicy {
	if capacity <= 0 {
		capacity = 1
	}
	return &arcPolicy{
		capacity: capacity,
		t1:       list.New(), t2: list.New(), b1: list.New(), b2: list.New(),
		t1idx: make(map[string]*list.Element), t2idx: make(map[string]*list.Element),
		b1idx: make(map[string]*list.Element), b2idx: make(map[string]*list.Element),
	}
}

func (p *arcPolicy) touch(key string) {
	if e, ok := p.t1idx[key]; ok {
		p.t1.Remove(e)
		delete(p.t1idx, key)
		p.t2idx[key] = p.t2.PushFront(key)
		return
	}
	if e, ok := p.t2idx[key]; ok {
		p.t2.MoveToFront(e)
	}
}

func (p *arcPolicy) insert(key string) (string, bool) {
	if e, ok := p.b1idx[key]; ok {
		delta := 1
		if p.b1.Len() > 0 && p.b2.Len() > p.b1.Len() {
			delta = p.b2.Len() / p.b1.Len()
		}
		p.p += delta
		if p.p > p.capacity {
			p.p = p.capacity
		}
		p.b1.Remove(e)
		delete(p.b1idx, key)
		evicted, ok := p.replace(key)
		p.t2idx[key] = p.t2.PushFront(key)
		return evicted, ok
	}
	if e, ok := p.b2idx[key]; ok {
		delta := 1
		if p.b2.Len() > 0 && p.b1.Len() > p.b2.Len() {
			delta = p.b1.Len() / p.b2.Len()
		}
		p.p -= delta
		if p.p < 0 {
			p.p = 0
		}
		p.b2.Remove(e)
		delete(p.b2idx, key)
		evicted, ok := p.replace(key)
		p.t2idx[key] = p.t2.PushFront(key)
		return evicted, ok
	}

	var evicted string
	var hasEvicted bool
	l1 := p.t1.Len() + p.b1.Len()
	switch {
	case l1 == p.capacity:
		if p.t1.Len() < p.capacity {
			p.popGhost(p.b1, p.b1idx)
			evicted, hasEvicted = p.replace(key)
		} else if e := p.t1.Back(); e != nil {
			k := e.Value.(string)
			p.t1.Remove(e)
			delete(p.t1idx, k)
			evicted, hasEvicted = k, true
		}
	case l1 < p.capacity && l1+p.t2.Len()+p.b2.Len() >= p.capacity:
		if l1+p.t2.Len()+p.b1.Len()+p.b2.Len() >= 2*p.capacity {
			p.popGhost(p.b2, p.b2idx)
		}
		evicted, hasEvicted = p.replace(key)
	}
	p.t1idx[key] = p.t1.PushFront(key)
	return evicted, hasEvicted
}

// replace evicts from T1's or T2's tail per the target size p, moving the
// evicted key into the matching ghost list so a future re-admission can
// adapt p instead of starting cold.
func (p *arcPolicy) replace(key string) (string, bool) {
	if p.t1.Len() > 0 && p.t1.Len() >= p.p {
		e := p.t1.Back()
		k := e.Value.(string)
		p.t1.Remove(e)
		delete(p.t1idx, k)
		p.b1idx[k] = p.b1.PushFront(k)
		return k, true
	}
	if p.t2.Len() > 0 {
		e := p.t2.Back()
		k := e.Value.(string)
		p.t2.Remove(e)
		delete(p.t2idx, k)
		p.b2idx[k] = p.b2.PushFront(k)
		return k, true
	}
	if p.t1.Len() > 0 {
		e := p.t1.Back()
		k := e.Value.(string)
		p.t1.Remove(e)
		delete(p.t1idx, k)
		p.b1idx[k] = p.b1.PushFront(k)
		return k, true
	}
	return "", false
}

func (p *arcPolicy) popGhost(l *list.List, idx map[string]*list.Element) {
	e := l.Back()
	if e == nil {
		return
	}
	l.Remove(e)
	delete(idx, e.Value.(string))
}

func (p *arcPolicy) remove(key string) {
	if e, ok := p.t1idx[key]; ok {
		p.t1.Remove(e)
		delete(p.t1idx, key)
		return
	}
	if e, ok := p.t2idx[key]; ok {
		p.t2.Remove(e)
		delete(p.t2idx, key)
		return
	}
	if e, ok := p.b1idx[key]; ok {
		p.b1.Remove(e)
		delete(p.b1idx, key)
		return
	}
	if e, ok := p.b2idx[key]; ok {
		p.b2.Remove(e)
		delete(p.b2idx, key)
	}
}

// victim is a no-op: ARC decides and executes its one eviction per
// admission inside insert/replace, so the owning Cache never needs a
// separate victim pass for this policy.
func (p *arcPolicy) victim() (string, bool) { return "", false }

package cache

import "container/list"

// fifoPolicy evicts in strict insertion order; accesses never reorder it.
type fifoPolicy struct {
	order *list.List
	elems map[string]*list.Element
}

func newFIFOPolicy() *fifoPolicy {
	return &fifoPolicy{order: list.New(), elems: make(map[string]*list.Element)}
}

func (p *fifoPolicy) touch(string) {}

func (p *fifoPolicy) insert(key string) (string, bool) {
	if _, ok := p.elems[key]; ok {
		return "", false
	}
	p.elems[key] = p.order.PushBack(key)
	return "", false
}

func (p *fifoPolicy) remove(key string) {
	if e, ok := p.elems[key]; ok {
		p.order.Remove(e)
		delete(p.elems, key)
	}
}

func (p *fifoPolicy) victim() (string, bool) {
	e := p.order.Front()
	if e == nil {
		return "", false
	}
	return e.Value.(string), true
}

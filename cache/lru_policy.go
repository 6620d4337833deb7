package cache

import (
	"math"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// lruPolicy tracks recency order with hashicorp's simplelru.LRU; it is
// the only policy built on that library (FIFO uses container/list, CLOCK
// a slice ring). It is given an effectively
// unbounded size so it never auto-evicts on Add: the owning Cache decides
// when capacity is exceeded and pulls the victim on demand via
// RemoveOldest.
type lruPolicy struct {
	lru *simplelru.LRU[string, struct{}]
}

func newLRUPolicy() *lruPolicy {
	l, _ := simplelru.NewLRU[string, struct{}](math.MaxInt32, nil)
	return &lruPolicy{lru: l}
}

func (p *lruPolicy) touch(key string) { p.lru.Get(key) }

func (p *lruPolicy) insert(key string) (string, bool) {
	p.lru.Add(key, struct{}{})
	return "", false
}

func (p *lruPolicy) remove(key string) { p.lru.Remove(key) }

func (p *lruPolicy) victim() (string, bool) {
	k, _, ok := p.lru.RemoveOldest()
	return k, ok
}

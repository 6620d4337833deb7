// Package rbtree implements an ordered map over byte-string keys backed by
// a sentinel-node red-black tree (spec §3, §9: "a sum-type Leaf | Internal
// | Empty... expresses the same semantics without sentinels" -- here we
// keep the classic sentinel discipline but give every node a stable arena
// handle instead of a heap pointer, per spec §9's arena redesign hint).
//
// Tree[V] is generic over the stored value so it can serve both the
// standalone red-black-tree storage engine (spec §4: "Red-black tree
// engine") and the LSM memtable (spec §4.3.1), which needs the same
// ordered-map structure but a different value shape and deletion
// semantics (physical removal vs. tombstone).
package rbtree

import (
	"github.com/Lzww0608/ConcordKV-sub001/arena"
)

type color uint8

const (
	red color = iota
	black
)

type node[V any] struct {
	key    []byte
	value  V
	color  color
	left   arena.Handle
	right  arena.Handle
	parent arena.Handle
}

// Tree is a sentinel-node red-black tree mapping []byte keys to values of
// type V, with ascending in-order iteration.
type Tree[V any] struct {
	nodes *arena.Arena[node[V]]
	nilH  arena.Handle // sentinel, always black, left==right==parent==itself
	root  arena.Handle
	size  int
}

// NewTree creates an empty tree.
func NewTree[V any]() *Tree[V] {
	t := &Tree[V]{
		nodes: arena.New[node[V]](256, false),
	}
	// The arena reserves handle 0 as NilHandle already; allocate our
	// sentinel explicitly so it has a real, addressable node of color
	// black whose children point back to itself.
	t.nilH = t.nodes.Alloc(node[V]{color: black})
	sentinel := t.nodes.Get(t.nilH)
	sentinel.left = t.nilH
	sentinel.right = t.nilH
	sentinel.parent = t.nilH
	t.root = t.nilH
	return t
}

func (t *Tree[V]) n(h arena.Handle) *node[V] { return t.nodes.Get(h) }

// Len returns the number of keys currently stored.
func (t *Tree[V]) Len() int { return t.size }

// Get returns the value stored for key and whether it was found.
func (t *Tree[V]) Get(key []byte) (V, bool) {
	h := t.find(key)
	if h == t.nilH {
		var zero V
		return zero, false
	}
	return t.n(h).value, true
}

func (t *Tree[V]) find(key []byte) arena.Handle {
	cur := t.root
	for cur != t.nilH {
		cn := t.n(cur)
		c := compare(key, cn.key)
		if c == 0 {
			return cur
		} else if c < 0 {
			cur = cn.left
		} else {
			cur = cn.right
		}
	}
	return t.nilH
}

// Upsert inserts key->value, overwriting the value if key is already
// present. It returns true if the key was newly inserted.
func (t *Tree[V]) Upsert(key []byte, value V) bool {
	var parent arena.Handle = t.nilH
	cur := t.root
	for cur != t.nilH {
		cn := t.n(cur)
		c := compare(key, cn.key)
		if c == 0 {
			cn.value = value
			return false
		}
		parent = cur
		if c < 0 {
			cur = cn.left
		} else {
			cur = cn.right
		}
	}

	keyCopy := append([]byte(nil), key...)
	h := t.nodes.Alloc(node[V]{
		key:    keyCopy,
		value:  value,
		color:  red,
		left:   t.nilH,
		right:  t.nilH,
		parent: parent,
	})

	if parent == t.nilH {
		t.root = h
	} else {
		pn := t.n(parent)
		if compare(keyCopy, pn.key) < 0 {
			pn.left = h
		} else {
			pn.right = h
		}
	}
	t.size++
	t.insertFixup(h)
	return true
}

// Delete physically removes key from the tree. It returns false if key
// was not present.
func (t *Tree[V]) Delete(key []byte) bool {
	z := t.find(key)
	if z == t.nilH {
		return false
	}
	t.deleteNode(z)
	t.size--
	return true
}

// Min returns the smallest key and its value, if the tree is non-empty.
func (t *Tree[V]) Min() (key []byte, value V, ok bool) {
	if t.root == t.nilH {
		return nil, value, false
	}
	h := t.minimum(t.root)
	n := t.n(h)
	return n.key, n.value, true
}

func (t *Tree[V]) minimum(h arena.Handle) arena.Handle {
	for t.n(h).left != t.nilH {
		h = t.n(h).left
	}
	return h
}

func (t *Tree[V]) maximum(h arena.Handle) arena.Handle {
	for t.n(h).right != t.nilH {
		h = t.n(h).right
	}
	return h
}

func (t *Tree[V]) successor(h arena.Handle) arena.Handle {
	if t.n(h).right != t.nilH {
		return t.minimum(t.n(h).right)
	}
	p := t.n(h).parent
	for p != t.nilH && h == t.n(p).right {
		h = p
		p = t.n(p).parent
	}
	return p
}

// Ascend calls fn for every key in [start, end) (end==nil means no upper
// bound) in ascending order, stopping early if fn returns false.
func (t *Tree[V]) Ascend(start, end []byte, fn func(key []byte, value V) bool) {
	var h arena.Handle
	if start == nil {
		if t.root == t.nilH {
			return
		}
		h = t.minimum(t.root)
	} else {
		h = t.ceiling(start)
	}
	for h != t.nilH {
		n := t.n(h)
		if end != nil && compare(n.key, end) >= 0 {
			return
		}
		if !fn(n.key, n.value) {
			return
		}
		h = t.successor(h)
	}
}

// ceiling returns the handle of the smallest key >= target, or nilH.
func (t *Tree[V]) ceiling(target []byte) arena.Handle {
	cur := t.root
	var result arena.Handle = t.nilH
	for cur != t.nilH {
		cn := t.n(cur)
		c := compare(cn.key, target)
		if c == 0 {
			return cur
		} else if c > 0 {
			result = cur
			cur = cn.left
		} else {
			cur = cn.right
		}
	}
	return result
}

func compare(a, b []byte) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

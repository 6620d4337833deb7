package btree

import "github.com/Lzww0608/ConcordKV-sub001/arena"

// splitLeaf splits an overflowing leaf: the upper half moves to a new
// right sibling, leaf sibling pointers are relinked, and the right
// sibling's first key is copied up as the parent separator (spec §4.2).
func (t *Tree) splitLeaf(leafH arena.Handle, path []pathEntry) {
	ln := t.n(leafH)
	mid := len(ln.keys) / 2

	rightKeys := append([][]byte(nil), ln.keys[mid:]...)
	rightValues := append([][]byte(nil), ln.values[mid:]...)
	ln.keys = ln.keys[:mid]
	ln.values = ln.values[:mid]

	rightH := t.nodes.Alloc(node{
		isLeaf: true,
		keys:   rightKeys,
		values: rightValues,
		next:   ln.next,
		prev:   leafH,
		parent: ln.parent,
	})
	if ln.next != arena.NilHandle {
		t.n(ln.next).prev = rightH
	}
	ln.next = rightH

	separator := append([]byte(nil), rightKeys[0]...)
	if t.adaptive != nil {
		t.adaptive.recordSplit()
	}
	t.insertIntoParent(leafH, separator, rightH, path)
}

// splitInternal splits an overflowing internal node: the middle key is
// pushed up (not duplicated) into the parent, and every relocated child's
// parent pointer is retargeted at the new right sibling.
func (t *Tree) splitInternal(nodeH arena.Handle, path []pathEntry) {
	n := t.n(nodeH)
	mid := len(n.keys) / 2
	upKey := append([]byte(nil), n.keys[mid]...)

	rightKeys := append([][]byte(nil), n.keys[mid+1:]...)
	rightChildren := append([]arena.Handle(nil), n.children[mid+1:]...)
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	rightH := t.nodes.Alloc(node{
		isLeaf:   false,
		keys:     rightKeys,
		children: rightChildren,
		parent:   n.parent,
	})
	for _, ch := range rightChildren {
		t.n(ch).parent = rightH
	}

	if t.adaptive != nil {
		t.adaptive.recordSplit()
	}
	t.insertIntoParent(nodeH, upKey, rightH, path)
}

// insertIntoParent inserts separator/rightH into leftH's parent (found at
// the end of path), splitting the parent in turn if it overflows. If
// leftH was the root, a new root is allocated one level taller.
func (t *Tree) insertIntoParent(leftH arena.Handle, separator []byte, rightH arena.Handle, path []pathEntry) {
	if len(path) == 0 {
		newRoot := node{
			isLeaf:   false,
			keys:     [][]byte{separator},
			children: []arena.Handle{leftH, rightH},
		}
		rh := t.nodes.Alloc(newRoot)
		t.n(leftH).parent = rh
		t.n(rightH).parent = rh
		t.setRoot(rh)
		return
	}

	parentEntry := path[len(path)-1]
	parentH := parentEntry.node
	pn := t.n(parentH)

	ci := indexOfChild(pn.children, leftH)
	pn.keys = insertAt(pn.keys, ci, separator)
	pn.children = insertAt(pn.children, ci+1, rightH)
	t.n(rightH).parent = parentH
	pn.version++

	if len(pn.keys) > t.currentOrder() {
		t.splitInternal(parentH, path[:len(path)-1])
	}
}

func indexOfChild(children []arena.Handle, target arena.Handle) int {
	for i, h := range children {
		if h == target {
			return i
		}
	}
	return -1
}

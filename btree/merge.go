package btree

import "github.com/Lzww0608/ConcordKV-sub001/arena"

// rebalance repairs an underfull node by borrowing a key from a sibling
// that has one to spare, or merging with a sibling otherwise, recursing
// up the tree as needed (spec §4.2's borrow-then-merge delete policy).
// Unlike the teacher's mergeOrRedistribute (which stops after one level
// and never implements internal-node merge), this recurses to the root
// and handles both leaf and internal underflow.
func (t *Tree) rebalance(nodeH arena.Handle, path []pathEntry) {
	if len(path) == 0 {
		t.shrinkRootIfNeeded(nodeH)
		return
	}

	parentEntry := path[len(path)-1]
	parentH := parentEntry.node
	idxInParent := parentEntry.idx
	pn := t.n(parentH)
	minFill := t.minFill()

	if idxInParent > 0 {
		leftH := pn.children[idxInParent-1]
		if len(t.n(leftH).keys) > minFill {
			t.borrowFromLeft(nodeH, leftH, parentH, idxInParent)
			return
		}
	}
	if idxInParent < len(pn.children)-1 {
		rightH := pn.children[idxInParent+1]
		if len(t.n(rightH).keys) > minFill {
			t.borrowFromRight(nodeH, rightH, parentH, idxInParent)
			return
		}
	}

	if idxInParent > 0 {
		leftH := pn.children[idxInParent-1]
		t.mergeNodes(leftH, nodeH, parentH, idxInParent-1, path[:len(path)-1])
	} else {
		rightH := pn.children[idxInParent+1]
		t.mergeNodes(nodeH, rightH, parentH, idxInParent, path[:len(path)-1])
	}
}

func (t *Tree) shrinkRootIfNeeded(rootH arena.Handle) {
	root := t.n(rootH)
	if !root.isLeaf && len(root.children) == 1 {
		newRoot := root.children[0]
		t.n(newRoot).parent = arena.NilHandle
		t.setRoot(newRoot)
		t.nodes.Free(rootH)
	}
}

// borrowFromLeft moves one key (and, for internal nodes, one child) from
// leftH into nodeH, rotating the separator through the parent.
func (t *Tree) borrowFromLeft(nodeH, leftH, parentH arena.Handle, idxInParent int) {
	n, left, pn := t.n(nodeH), t.n(leftH), t.n(parentH)

	if n.isLeaf {
		lastIdx := len(left.keys) - 1
		movedKey, movedVal := left.keys[lastIdx], left.values[lastIdx]
		left.keys = left.keys[:lastIdx]
		left.values = left.values[:lastIdx]
		n.keys = insertAt(n.keys, 0, movedKey)
		n.values = insertAt(n.values, 0, movedVal)
		pn.keys[idxInParent-1] = append([]byte(nil), n.keys[0]...)
	} else {
		sepIdx := idxInParent - 1
		downKey := pn.keys[sepIdx]
		lastChildIdx := len(left.children) - 1
		movedChild := left.children[lastChildIdx]
		lastKeyIdx := len(left.keys) - 1
		upKey := left.keys[lastKeyIdx]
		left.keys = left.keys[:lastKeyIdx]
		left.children = left.children[:lastChildIdx]
		n.keys = insertAt(n.keys, 0, downKey)
		n.children = insertAt(n.children, 0, movedChild)
		t.n(movedChild).parent = nodeH
		pn.keys[sepIdx] = upKey
	}
	left.version++
	n.version++
	pn.version++
}

// borrowFromRight moves one key (and, for internal nodes, one child) from
// rightH into nodeH, rotating the separator through the parent.
func (t *Tree) borrowFromRight(nodeH, rightH, parentH arena.Handle, idxInParent int) {
	n, right, pn := t.n(nodeH), t.n(rightH), t.n(parentH)

	if n.isLeaf {
		movedKey, movedVal := right.keys[0], right.values[0]
		right.keys = removeAt(right.keys, 0)
		right.values = removeAt(right.values, 0)
		n.keys = append(n.keys, movedKey)
		n.values = append(n.values, movedVal)
		pn.keys[idxInParent] = append([]byte(nil), right.keys[0]...)
	} else {
		sepIdx := idxInParent
		downKey := pn.keys[sepIdx]
		movedChild := right.children[0]
		upKey := right.keys[0]
		right.keys = removeAt(right.keys, 0)
		right.children = removeAt(right.children, 0)
		n.keys = append(n.keys, downKey)
		n.children = append(n.children, movedChild)
		t.n(movedChild).parent = nodeH
		pn.keys[sepIdx] = upKey
	}
	right.version++
	n.version++
	pn.version++
}

// mergeNodes merges rightH's contents into leftH, removes the separator
// at sepIdx from parentH, and recurses if the parent itself becomes
// underfull (or, if the parent is the root, shrinks the tree by one
// level).
func (t *Tree) mergeNodes(leftH, rightH, parentH arena.Handle, sepIdx int, grandparentPath []pathEntry) {
	left, right, pn := t.n(leftH), t.n(rightH), t.n(parentH)

	if left.isLeaf {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.next = right.next
		if right.next != arena.NilHandle {
			t.n(right.next).prev = leftH
		}
	} else {
		downKey := pn.keys[sepIdx]
		left.keys = append(left.keys, downKey)
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
		for _, ch := range right.children {
			t.n(ch).parent = leftH
		}
	}
	left.version++

	pn.keys = removeAt(pn.keys, sepIdx)
	pn.children = removeAt(pn.children, sepIdx+1)
	pn.version++
	t.nodes.Free(rightH)

	if t.adaptive != nil {
		t.adaptive.recordMerge()
	}

	if parentH == t.getRoot() {
		t.shrinkRootIfNeeded(parentH)
		return
	}
	if len(pn.keys) < t.minFill() {
		t.rebalance(parentH, grandparentPath)
	}
}

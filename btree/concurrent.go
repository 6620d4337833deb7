package btree

import (
	"github.com/Lzww0608/ConcordKV-sub001/arena"
	"github.com/Lzww0608/ConcordKV-sub001/common"
)

// ConcurrentGet performs a lookup using latch coupling over per-node
// locks instead of the tree-level mu, grounded on the teacher's
// latch.go (LatchCoupling/ConcurrentGet): lock the child, then release
// the parent, descending one level at a time. Safe to call alongside
// other ConcurrentGet/ConcurrentPut calls; root reads go through the
// atomically-stored rootHandle so it never races a concurrent root
// replacement.
func (t *Tree) ConcurrentGet(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, common.ErrKeyEmpty
	}
	if t.closed.Load() {
		return nil, common.ErrClosed
	}

	cur := t.getRoot()
	curNode := t.n(cur)
	curNode.mu.RLock()

	for !curNode.isLeaf {
		idx := curNode.childIndex(key)
		childH := curNode.children[idx]
		childNode := t.n(childH)
		childNode.mu.RLock()

		curNode.mu.RUnlock()
		cur, curNode = childH, childNode
	}

	idx, found := curNode.searchKey(key)
	if !found {
		curNode.mu.RUnlock()
		t.touch(func(s *common.Stats) { s.ReadCount++ })
		return nil, common.ErrKeyNotFound
	}
	value := append([]byte(nil), curNode.values[idx]...)
	curNode.mu.RUnlock()

	t.touch(func(s *common.Stats) {
		s.ReadCount++
		s.BytesRead += int64(len(value))
	})
	return value, nil
}

// ConcurrentPut performs an insert-or-overwrite using latch coupling for
// the common case where no split occurs on the path, falling back to
// the tree-level exclusive lock when a structural change (a split
// reaching the root, or any split at all) is required. The teacher's
// own ConcurrentPut takes this same shortcut ("for simplicity, we'll
// acquire exclusive latches all the way down... a more sophisticated
// implementation would use read latches until a split is needed"); this
// version at least avoids the tree-wide lock on the non-splitting path,
// which is the overwhelmingly common case once a tree has stabilized.
func (t *Tree) ConcurrentPut(key, value []byte) error {
	if err := validateKeyValue(key, value); err != nil {
		return err
	}
	if t.closed.Load() {
		return common.ErrClosed
	}

	cur := t.getRoot()
	curNode := t.n(cur)
	curNode.mu.Lock()
	held := []arena.Handle{cur} // ancestors whose latch is still held

	for !curNode.isLeaf {
		idx := curNode.childIndex(key)
		childH := curNode.children[idx]
		childNode := t.n(childH)
		childNode.mu.Lock()
		held = append(held, childH)

		if len(childNode.keys) < t.currentOrder() {
			// childNode is safe (won't split): its ancestors can never
			// need to change because of this insert, so release them.
			for _, h := range held[:len(held)-1] {
				t.n(h).mu.Unlock()
			}
			held = held[len(held)-1:]
		}
		cur, curNode = childH, childNode
	}

	idx, found := curNode.searchKey(key)
	keyCopy := append([]byte(nil), key...)
	valCopy := append([]byte(nil), value...)

	willSplit := !found && len(curNode.keys)+1 > t.currentOrder()
	if willSplit {
		// Structural change: release the whole latch chain and fall
		// back to the safe, fully serialized path.
		for i := len(held) - 1; i >= 0; i-- {
			t.n(held[i]).mu.Unlock()
		}
		return t.Put(key, value)
	}

	if found {
		curNode.values[idx] = valCopy
	} else {
		curNode.keys = insertAt(curNode.keys, idx, keyCopy)
		curNode.values = insertAt(curNode.values, idx, valCopy)
		t.liveKeys.Add(1)
	}
	curNode.version++
	for i := len(held) - 1; i >= 0; i-- {
		t.n(held[i]).mu.Unlock()
	}

	if t.cache != nil {
		t.cache.invalidate(string(key))
	}
	if t.adaptive != nil {
		t.adaptive.recordInsert(t)
	}
	t.touch(func(s *common.Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(key) + len(value))
		s.NumKeys = t.liveKeys.Load()
	})
	return nil
}

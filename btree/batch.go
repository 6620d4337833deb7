package btree

import (
	"sort"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

const defaultMaxBatchEntries = 4096

type batchOpKind int

const (
	batchPut batchOpKind = iota
	batchDelete
)

type batchOp struct {
	kind  batchOpKind
	key   []byte
	value []byte
}

// Batch accumulates Put/Delete operations and replays them against the
// tree in one Commit call (spec §4.2's "Batch interface"). Each replayed
// operation goes through Tree.Put or Tree.Delete and takes the tree-level
// lock on its own; the lock is not held across the whole replay.
// Entries are sorted lexicographically before replay so a batch that
// touches keys across many leaves still walks the tree left to right.
type Batch struct {
	tree    *Tree
	ops     []batchOp
	maxSize int
}

// NewBatch creates a batch bound to t, rejecting entries past maxSize (0
// means defaultMaxBatchEntries).
func (t *Tree) NewBatch(maxSize int) *Batch {
	if maxSize <= 0 {
		maxSize = defaultMaxBatchEntries
	}
	return &Batch{tree: t, maxSize: maxSize}
}

// Put stages a write. It does not touch the tree until Commit.
func (b *Batch) Put(key, value []byte) error {
	if err := validateKeyValue(key, value); err != nil {
		return err
	}
	if len(b.ops) >= b.maxSize {
		return common.ErrBatchFull
	}
	b.ops = append(b.ops, batchOp{
		kind:  batchPut,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	return nil
}

// Delete stages a delete. It does not touch the tree until Commit.
func (b *Batch) Delete(key []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	if len(b.ops) >= b.maxSize {
		return common.ErrBatchFull
	}
	b.ops = append(b.ops, batchOp{kind: batchDelete, key: append([]byte(nil), key...)})
	return nil
}

// Len returns the number of staged operations.
func (b *Batch) Len() int { return len(b.ops) }

// Reset discards all staged operations.
func (b *Batch) Reset() { b.ops = b.ops[:0] }

// Commit sorts the staged operations by key and applies each in order
// through the tree's single-entry Put/Delete paths. A delete for a key
// that no longer exists (e.g. two ops on the same key within the batch
// collapsed by an earlier Put) is not an error inside a batch, since the
// caller only sees the batch's net effect, not each op's outcome.
func (b *Batch) Commit() error {
	if len(b.ops) == 0 {
		return nil
	}
	sort.SliceStable(b.ops, func(i, j int) bool {
		return compareBytes(b.ops[i].key, b.ops[j].key) < 0
	})

	for _, op := range b.ops {
		switch op.kind {
		case batchPut:
			if err := b.tree.Put(op.key, op.value); err != nil {
				return common.ErrBatchFailed
			}
		case batchDelete:
			if err := b.tree.Delete(op.key); err != nil && common.ErrorKind(err) != common.KindNotFound {
				return common.ErrBatchFailed
			}
		}
	}
	b.Reset()
	return nil
}

package batch

import (
	"errors"
	"testing"

	"github.com/Lzww0608/ConcordKV-sub001/common"
	"github.com/Lzww0608/ConcordKV-sub001/common/testutil"
	"github.com/Lzww0608/ConcordKV-sub001/rbtree"
	"github.com/Lzww0608/ConcordKV-sub001/wal"
)

func TestCommitDedupAndAtomicity(t *testing.T) {
	// spec §8 seed scenario E3.
	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)
	b := New(e, nil, seq, Config{EnableDeduplication: true, AtomicCommit: true})

	b.Put([]byte("x"), []byte("1"))
	b.Put([]byte("y"), []byte("2"))
	b.Put([]byte("x"), []byte("3"))
	b.Delete([]byte("y"))

	res, err := b.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Committed != 2 {
		t.Fatalf("expected committed=2, got %d", res.Committed)
	}
	v, err := e.Get([]byte("x"))
	if err != nil || string(v) != "3" {
		t.Fatalf("expected x=3, got %v %v", v, err)
	}
	if _, err := e.Get([]byte("y")); !errors.Is(err, common.ErrKeyNotFound) {
		t.Fatalf("expected y deleted, got %v", err)
	}
}

func TestCommitDedupSingleWALRecordPerKey(t *testing.T) {
	// spec §8 invariant 9.
	dir := testutil.TempDir(t)
	w, err := wal.NewWriter(dir, 0, false, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)
	b := New(e, w, seq, Config{EnableDeduplication: true, EnableWAL: true})

	b.Put([]byte("k"), []byte("v1"))
	b.Put([]byte("k"), []byte("v2"))
	b.Put([]byte("k"), []byte("v3"))

	res, err := b.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.WALWrites != 1 {
		t.Fatalf("expected exactly 1 WAL record for k, got %d", res.WALWrites)
	}
	v, _ := e.Get([]byte("k"))
	if string(v) != "v3" {
		t.Fatalf("expected k=v3, got %s", v)
	}

	var recCount int
	if err := wal.ReplayAll(dir, nil, func(r wal.Record) error {
		recCount++
		return nil
	}); err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if recCount != 1 {
		t.Fatalf("expected exactly 1 record on disk, got %d", recCount)
	}
}

func TestCommitNonAtomicRecordsFirstError(t *testing.T) {
	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)
	b := New(e, nil, seq, Config{AtomicCommit: false})

	b.Delete([]byte("missing")) // fails: not present
	b.Put([]byte("ok"), []byte("v"))

	res, err := b.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Failed != 1 || res.Committed != 1 {
		t.Fatalf("expected 1 failed, 1 committed, got failed=%d committed=%d", res.Failed, res.Committed)
	}
	if res.FirstErrorIndex != 0 {
		t.Fatalf("expected first error at index 0, got %d", res.FirstErrorIndex)
	}
	if _, err := e.Get([]byte("ok")); err != nil {
		t.Fatalf("expected ok to be committed despite earlier failure: %v", err)
	}
}

func TestCommitAtomicAbortsOnFirstFailure(t *testing.T) {
	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)
	b := New(e, nil, seq, Config{AtomicCommit: true})

	b.Delete([]byte("missing"))
	b.Put([]byte("later"), []byte("v"))

	res, err := b.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Committed != 0 {
		t.Fatalf("expected 0 committed after atomic abort, got %d", res.Committed)
	}
	if _, err := e.Get([]byte("later")); !errors.Is(err, common.ErrKeyNotFound) {
		t.Fatalf("expected later to never be applied, got %v", err)
	}
}

func TestBatchCapsEnforced(t *testing.T) {
	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)
	b := New(e, nil, seq, Config{MaxBatchSize: 1})
	if err := b.Put([]byte("a"), []byte("v")); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := b.Put([]byte("b"), []byte("v")); !errors.Is(err, common.ErrBatchFull) {
		t.Fatalf("expected ErrBatchFull, got %v", err)
	}
}

func TestCommitTimeoutNeverHangs(t *testing.T) {
	// spec §8 invariant 13: timeout_ms=0 either completes within epsilon
	// or returns partial-commit with TIMEOUT; never hangs.
	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)
	b := New(e, nil, seq, Config{TimeoutMs: 0})
	for i := 0; i < 100; i++ {
		b.Put([]byte{byte(i)}, []byte("v"))
	}
	res, err := b.Commit()
	if res == nil {
		t.Fatalf("Commit returned nil result")
	}
	_ = err // either nil (completed in time) or ErrTimeout
}

func TestCommitIsOneShot(t *testing.T) {
	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)
	b := New(e, nil, seq, Config{})
	b.Put([]byte("a"), []byte("v"))
	if _, err := b.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if _, err := b.Commit(); common.ErrorKind(err) != common.KindInvalidState {
		t.Fatalf("expected INVALID_STATE on double commit, got %v", err)
	}
}

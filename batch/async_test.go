package batch

import (
	"sync"
	"testing"

	"github.com/Lzww0608/ConcordKV-sub001/common"
	"github.com/Lzww0608/ConcordKV-sub001/rbtree"
)

func TestAsyncBatchSubmitAndWait(t *testing.T) {
	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)

	var mu sync.Mutex
	var entryCalls int
	var completed bool

	ab := NewAsyncBatch(e, nil, seq, Config{}, AsyncCallbacks{
		OnEntry: func(index int, entry Entry, err error) {
			mu.Lock()
			entryCalls++
			mu.Unlock()
		},
		OnCompletion: func(result *Result, err error) {
			mu.Lock()
			completed = true
			mu.Unlock()
		},
	})

	ab.Put([]byte("a"), []byte("1"))
	ab.Put([]byte("b"), []byte("2"))
	ab.Submit()

	res, err := ab.Wait(0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Committed != 2 {
		t.Fatalf("expected 2 committed, got %d", res.Committed)
	}

	mu.Lock()
	defer mu.Unlock()
	if entryCalls != 2 {
		t.Fatalf("expected 2 entry callbacks, got %d", entryCalls)
	}
	if !completed {
		t.Fatalf("expected completion callback to have fired")
	}

	v, err := e.Get([]byte("a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("expected a=1, got %v %v", v, err)
	}
}

func TestAsyncBatchCancelBeforeSubmitMarksCancelled(t *testing.T) {
	e := rbtree.New()
	seq := common.NewMonotonicSeq(0)

	ab := NewAsyncBatch(e, nil, seq, Config{}, AsyncCallbacks{})
	ab.Put([]byte("a"), []byte("1"))
	ab.Cancel()
	ab.Submit() // no-op: Cancel already claimed the run

	res, err := ab.Wait(0)
	if err != common.ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected the single entry reported as failed/cancelled, got %d", res.Failed)
	}
	if _, getErr := e.Get([]byte("a")); getErr == nil {
		t.Fatalf("expected cancelled entry to never be applied")
	}
}

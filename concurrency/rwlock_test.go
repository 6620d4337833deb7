package concurrency

import (
	"testing"
	"time"
)

func TestSegmentLocksMultiOrdering(t *testing.T) {
	sl := NewSegmentLocks(8)
	keys := [][]byte{[]byte("zzz"), []byte("a"), []byte("mid")}

	done := make(chan struct{})
	unlock := sl.LockMulti(keys)
	go func() {
		// A second multi-key lock over the same keys (different order)
		// must not deadlock against the first.
		u2 := sl.LockMulti([][]byte{[]byte("a"), []byte("mid"), []byte("zzz")})
		u2()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("multi-key lock deadlocked")
	}
}

func TestTryLockForTimesOut(t *testing.T) {
	l := NewNamedRWMutex("test")
	l.Lock()
	defer l.Unlock()

	if l.TryLockFor(10 * time.Millisecond) {
		t.Fatal("expected TryLockFor to time out while held")
	}
}

func TestDeadlockWatchdogFlagsLongWaits(t *testing.T) {
	w := NewDeadlockWatchdog(5 * time.Millisecond)
	w.BeginWait("worker-1")
	time.Sleep(10 * time.Millisecond)

	flagged := w.Check()
	if len(flagged) != 1 || flagged[0] != "worker-1" {
		t.Fatalf("expected worker-1 flagged, got %v", flagged)
	}

	w.EndWait("worker-1")
	if flagged := w.Check(); len(flagged) != 0 {
		t.Fatalf("expected no waits after EndWait, got %v", flagged)
	}
}

// Package concurrency provides the lock primitives shared across engines:
// a named read/write lock that supports timeout-bounded acquisition, a
// segment-lock array for disjoint-key parallelism, and an advisory
// deadlock-timeout watchdog.
package concurrency

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// NamedRWMutex wraps sync.RWMutex with a name (for the deadlock watchdog's
// reporting) and TryLock/TryRLock variants bounded by a timeout, since the
// standard library's RWMutex has no try-acquire primitive.
type NamedRWMutex struct {
	Name string
	mu   sync.RWMutex
	sem  chan struct{} // 1-buffered; not used by TryLockFor or TryRLockFor
	rsem chan struct{} // never allocated; not used by TryRLockFor
}

// NewNamedRWMutex creates a lock identified by name for diagnostics.
func NewNamedRWMutex(name string) *NamedRWMutex {
	return &NamedRWMutex{
		Name: name,
		sem:  make(chan struct{}, 1),
	}
}

// Lock acquires the write lock unconditionally.
func (l *NamedRWMutex) Lock() { l.mu.Lock() }

// Unlock releases the write lock.
func (l *NamedRWMutex) Unlock() { l.mu.Unlock() }

// RLock acquires the read lock unconditionally.
func (l *NamedRWMutex) RLock() { l.mu.RLock() }

// RUnlock releases the read lock.
func (l *NamedRWMutex) RUnlock() { l.mu.RUnlock() }

// TryLockFor attempts to acquire the write lock, giving up after timeout.
// It returns false on timeout rather than blocking indefinitely. No package
// in this module calls it; batch commits and range scans check their own
// deadlines.
func (l *NamedRWMutex) TryLockFor(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		// The goroutine above is still blocked waiting for the lock; when
		// it eventually acquires it, it will have locked on our behalf
		// with nobody to unlock it. Spawn an unlock-on-acquire so the
		// lock is not leaked permanently held.
		go func() {
			<-done
			l.mu.Unlock()
		}()
		return false
	}
}

// TryRLockFor attempts to acquire the read lock, giving up after timeout.
func (l *NamedRWMutex) TryRLockFor(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.mu.RLock()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		go func() {
			<-done
			l.mu.RUnlock()
		}()
		return false
	}
}

// SegmentLocks partitions lock acquisition across N segments keyed by
// hash(key) mod N (spec §5: "Segmented locks"). Multi-key locking always
// acquires segments in ascending index order to preclude deadlock.
type SegmentLocks struct {
	segments []sync.RWMutex
	n        uint64
}

// NewSegmentLocks creates a segment-lock array with n segments.
func NewSegmentLocks(n int) *SegmentLocks {
	if n <= 0 {
		n = 1
	}
	return &SegmentLocks{
		segments: make([]sync.RWMutex, n),
		n:        uint64(n),
	}
}

// Index returns the segment index for key.
func (s *SegmentLocks) Index(key []byte) int {
	return int(xxhash.Sum64(key) % s.n)
}

// Lock acquires the write lock for key's segment.
func (s *SegmentLocks) Lock(key []byte) { s.segments[s.Index(key)].Lock() }

// Unlock releases the write lock for key's segment.
func (s *SegmentLocks) Unlock(key []byte) { s.segments[s.Index(key)].Unlock() }

// RLock acquires the read lock for key's segment.
func (s *SegmentLocks) RLock(key []byte) { s.segments[s.Index(key)].RLock() }

// RUnlock releases the read lock for key's segment.
func (s *SegmentLocks) RUnlock(key []byte) { s.segments[s.Index(key)].RUnlock() }

// LockMulti acquires write locks for every key's segment, deduplicated and
// sorted ascending by segment index, so that concurrent multi-key lockers
// can never form a wait cycle. It returns the unlock function.
func (s *SegmentLocks) LockMulti(keys [][]byte) (unlock func()) {
	seen := make(map[int]struct{}, len(keys))
	indices := make([]int, 0, len(keys))
	for _, k := range keys {
		idx := s.Index(k)
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		s.segments[idx].Lock()
	}
	return func() {
		for i := len(indices) - 1; i >= 0; i-- {
			s.segments[indices[i]].Unlock()
		}
	}
}

// WithTimeout returns a context bound to the given timeout_ms, treating 0
// as "no deadline" is NOT the convention here: per spec §5, timeout_ms=0
// on a batch commit means "return almost immediately" rather than "wait
// forever" -- a value of 0 or less yields a one-microsecond deadline. No
// package in this module calls this helper.
func WithTimeout(parent context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return context.WithTimeout(parent, time.Microsecond)
	}
	return context.WithTimeout(parent, time.Duration(ms)*time.Millisecond)
}

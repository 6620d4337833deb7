package lsm

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// TaskType identifies what kind of background work a scheduled task
// performs (spec §4.3.4).
type TaskType int

const (
	TaskFlush TaskType = iota
	TaskCompactLevel
	TaskManual
)

// TaskPriority orders pending work; higher values run first (spec §4.3.4:
// LOW/NORMAL/HIGH/URGENT).
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// TaskState tracks a task's lifecycle (spec §4.3.4:
// PENDING/RUNNING/COMPLETED/FAILED/CANCELLED).
type TaskState int32

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskCompleted
	TaskFailed
	TaskCancelled
)

// task is one unit of background work submitted to the scheduler.
type task struct {
	kind     TaskType
	priority TaskPriority
	level    int // source level, for TaskCompactLevel
	seq      uint64
	state    atomic.Int32
	run      func() error
}

// taskHeap is a max-priority-queue ordered by priority, then by submission
// order (earlier first) to break ties fairly. Grounded on compaction.go's
// CompactionHeap / iterator.go's MergingIteratorHeap container/heap usage.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// scheduler runs a bounded pool of workers pulling tasks off a priority
// queue (spec §4.3.4: flush and compaction tasks are prioritized and run
// by a worker pool rather than one dedicated goroutine per concern).
type scheduler struct {
	mu      sync.Mutex
	heap    taskHeap
	nextSeq uint64
	notify  chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     *zap.Logger
}

func newScheduler(workers int, log *zap.Logger) *scheduler {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &scheduler{
		notify:  make(chan struct{}, workers),
		closeCh: make(chan struct{}),
		log:     log,
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// submit enqueues a task. Duplicate level-compaction requests are not
// coalesced: callers submit whenever ShouldCompact reports true, so the
// same level may be queued more than once.
func (s *scheduler) submit(t *task) {
	s.mu.Lock()
	s.nextSeq++
	t.seq = s.nextSeq
	t.state.Store(int32(TaskPending))
	heap.Push(&s.heap, t)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.closeCh:
			return
		case <-s.notify:
			for {
				t := s.pop()
				if t == nil {
					break
				}
				t.state.Store(int32(TaskRunning))
				if err := t.run(); err != nil {
					t.state.Store(int32(TaskFailed))
					s.log.Warn("lsm: background task failed", zap.Int("kind", int(t.kind)), zap.Error(err))
				} else {
					t.state.Store(int32(TaskCompleted))
				}
			}
		}
	}
}

func (s *scheduler) pop() *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(&s.heap).(*task)
}

// close stops all workers after their current task finishes. Pending
// queued tasks are discarded; callers needing a final drain (e.g. Close())
// must flush synchronously before calling this.
func (s *scheduler) close() {
	close(s.closeCh)
	s.wg.Wait()
}

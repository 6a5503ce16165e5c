// Package scheduler implements a cancelable delayed-task scheduler keyed by
// job id. At most one outstanding task exists per id: arming a task for an id
// that already has one replaces it. Ordering uses a min-heap of fire times
// with a map from id to the live task handle; replaced and canceled entries
// are discarded lazily when they surface at the heap head.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// TaskFunc is the work a fired task performs. It runs in its own goroutine;
// tasks for different ids may run concurrently.
type TaskFunc func(ctx context.Context)

type task struct {
	id     string
	fireAt time.Time
	fn     TaskFunc
	index  int
}

// taskHeap implements heap.Interface ordered by earliest fire time.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	n := len(*h)
	t := x.(*task)
	t.index = n
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil  // avoid memory leak
	t.index = -1    // for safety
	*h = old[0 : n-1]
	return t
}

// Scheduler dispatches delayed tasks from a single goroutine.
type Scheduler struct {
	mu      sync.Mutex
	heap    taskHeap
	active  map[string]*task
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// New creates a new scheduler.
func New() *Scheduler {
	return &Scheduler{
		heap:   taskHeap{},
		active: make(map[string]*task),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the dispatcher loop. The context is passed to fired tasks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	heap.Init(&s.heap)
	go s.run(ctx)

	return nil
}

// Stop shuts down the dispatcher and waits for in-flight tasks to return.
// Armed tasks that have not fired are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	s.wg.Wait()
}

// Schedule arms a task for id after delay, replacing any outstanding task for
// the same id.
func (s *Scheduler) Schedule(id string, delay time.Duration, fn TaskFunc) {
	t := &task{
		id:     id,
		fireAt: time.Now().Add(delay),
		fn:     fn,
		index:  -1,
	}

	s.mu.Lock()
	s.active[id] = t
	heap.Push(&s.heap, t)
	s.mu.Unlock()

	s.poke()
}

// Cancel removes the outstanding task for id, if any, and reports whether one
// existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	_, ok := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()

	return ok
}

// Len returns the number of armed tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// poke nudges the dispatcher to recompute its next wakeup.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, wait := s.collectDue()

		for _, t := range due {
			s.wg.Add(1)
			go func(t *task) {
				defer s.wg.Done()
				t.fn(ctx)
			}(t)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-s.wake:
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// collectDue pops every live task whose fire time has passed and returns the
// wait until the next live task, discarding stale heap entries along the way.
func (s *Scheduler) collectDue() ([]*task, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var due []*task

	for s.heap.Len() > 0 {
		head := s.heap[0]

		// Stale entry: replaced by a newer task or canceled.
		if s.active[head.id] != head {
			heap.Pop(&s.heap)
			continue
		}

		if head.fireAt.After(now) {
			return due, head.fireAt.Sub(now)
		}

		heap.Pop(&s.heap)
		delete(s.active, head.id)
		due = append(due, head)
	}

	return due, time.Hour
}

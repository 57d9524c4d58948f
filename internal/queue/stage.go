// Package queue implements a Stage: the ready/delayed/deferred task
// machinery shared by the ADLIST and ADVIEW phases. A Stage tracks task
// lifecycle (in_flight/done/deferred) under a single mutex, runs a
// background dispatcher that promotes delayed-retry tasks into the ready
// queue once their ready_at has passed, and exposes quiescence so the
// Phase Sequencer knows when a phase has drained.
//
// The delayed structure is grounded on container/heap; the ready/in_flight/
// done bookkeeping generalizes the channel-and-atomic-counters shape of
// internal/core/spawn_queue.go in the teacher repo.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"harvester/internal/task"
)

const (
	dispatcherTick  = 500 * time.Millisecond
	dispatcherBatch = 100
)

// Metrics holds the monotonic counters spec.md requires for end-of-run
// accounting. All fields are read under Stage.mu; there is no need for
// atomics since every mutation already holds the lock.
type Metrics struct {
	Total          int64
	Completed      int64
	OK             int64
	Retried        int64
	Deferred       int64
	FinalExhausted int64
}

// Stage holds one phase's (ADLIST or ADVIEW) task queue state.
type Stage struct {
	mu sync.Mutex

	ready   []task.Task
	delayed delayedHeap
	deferr  []task.Task

	inFlight    map[task.Key]bool
	done        map[task.Key]bool
	deferredSet map[task.Key]bool
	admitted    map[task.Key]bool

	metrics Metrics
	seq     int64

	notEmpty chan struct{} // buffered 1, signaled on any ready-producing event

	stopDispatch context.CancelFunc
	dispatchDone chan struct{}
}

// NewStage constructs an empty Stage and starts its background dispatcher.
func NewStage() *Stage {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stage{
		inFlight:     make(map[task.Key]bool),
		done:         make(map[task.Key]bool),
		deferredSet:  make(map[task.Key]bool),
		admitted:     make(map[task.Key]bool),
		notEmpty:     make(chan struct{}, 1),
		stopDispatch: cancel,
		dispatchDone: make(chan struct{}),
	}
	heap.Init(&s.delayed)
	go s.dispatcher(ctx)
	return s
}

// Stop terminates the background dispatcher. Call once the stage is no
// longer needed.
func (s *Stage) Stop() {
	s.stopDispatch()
	<-s.dispatchDone
}

func (s *Stage) signal() {
	select {
	case s.notEmpty <- struct{}{}:
	default:
	}
}

// dispatcher polls the delayed heap and promotes ready entries into the
// ready queue. Ticking rather than timer-per-entry keeps this single
// goroutine cheap regardless of how many tasks are delayed.
func (s *Stage) dispatcher(ctx context.Context) {
	defer close(s.dispatchDone)
	ticker := time.NewTicker(dispatcherTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.promoteDue()
		}
	}
}

func (s *Stage) promoteDue() {
	s.mu.Lock()
	due := s.delayed.peekReady(time.Now(), dispatcherBatch)
	if len(due) > 0 {
		for _, e := range due {
			s.ready = append(s.ready, e.task)
		}
	}
	s.mu.Unlock()
	if len(due) > 0 {
		s.signal()
	}
}

// Submit admits a brand-new primary task into the ready queue. It is a
// no-op if the key has already been submitted (still ready or delayed,
// in_flight, done, or deferred), preserving "exactly-once admission per key."
func (s *Stage) Submit(t task.Task) {
	s.mu.Lock()
	if s.admitted[t.Key] || s.inFlight[t.Key] || s.done[t.Key] || s.deferredSet[t.Key] {
		s.mu.Unlock()
		return
	}
	s.admitted[t.Key] = true
	s.metrics.Total++
	s.ready = append(s.ready, t)
	s.mu.Unlock()
	s.signal()
}

// Take pops the next ready task, blocking up to timeout for one to appear,
// and records the returned task as in_flight before returning it.
func (s *Stage) Take(timeout time.Duration) (task.Task, bool) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if len(s.ready) > 0 {
			t := s.ready[0]
			s.ready = s.ready[1:]
			s.inFlight[t.Key] = true
			s.mu.Unlock()
			return t, true
		}
		s.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return task.Task{}, false
		}
		wait := remaining
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		select {
		case <-s.notEmpty:
		case <-time.After(wait):
		}
	}
}

// ScheduleRetry moves a task that just failed back into the delayed heap
// at now+delay, bumping its attempt counter bookkeeping is the caller's
// job (the Worker decides the next attempt number and delay tier).
func (s *Stage) ScheduleRetry(t task.Task, delay time.Duration) {
	s.mu.Lock()
	delete(s.inFlight, t.Key)
	s.seq++
	heap.Push(&s.delayed, &delayedEntry{
		readyAt: time.Now().Add(delay),
		seq:     s.seq,
		task:    t,
	})
	s.metrics.Retried++
	s.mu.Unlock()
}

// Defer moves an exhausted-primary-attempts task into the deferred set for
// a later final-sweep pass.
func (s *Stage) Defer(t task.Task) {
	s.mu.Lock()
	delete(s.inFlight, t.Key)
	s.deferredSet[t.Key] = true
	s.deferr = append(s.deferr, t)
	s.metrics.Deferred++
	s.mu.Unlock()
}

// MarkDone records a task as permanently completed (success) and bumps the
// completed/ok counters.
func (s *Stage) MarkDone(t task.Task, ok bool) {
	s.mu.Lock()
	delete(s.inFlight, t.Key)
	s.done[t.Key] = true
	s.metrics.Completed++
	if ok {
		s.metrics.OK++
	}
	s.mu.Unlock()
}

// MarkFinalExhausted records a task that failed even its final-sweep
// attempt. It counts as completed for quiescence purposes but not ok.
func (s *Stage) MarkFinalExhausted(t task.Task) {
	s.mu.Lock()
	delete(s.inFlight, t.Key)
	s.done[t.Key] = true
	s.metrics.Completed++
	s.metrics.FinalExhausted++
	s.mu.Unlock()
}

// DrainDeferredIntoReady moves every deferred task back into the ready
// queue for its final-sweep attempt. Called once the primary pass has
// reached quiescence. A deferred task already failed its primary attempts
// before being deferred, so it resumes at attempt 3, not a fresh
// attempt 1 — one more failure here must be terminal (MarkFinalExhausted),
// not the start of another two-round retry cycle.
func (s *Stage) DrainDeferredIntoReady() int {
	s.mu.Lock()
	n := len(s.deferr)
	for _, t := range s.deferr {
		t.Phase = task.PhaseFinalSweep
		t.Attempt = 3
		delete(s.deferredSet, t.Key)
		s.ready = append(s.ready, t)
	}
	s.deferr = nil
	s.mu.Unlock()
	if n > 0 {
		s.signal()
	}
	return n
}

// IsQuiescent reports whether ready, delayed, in_flight and deferred are
// all simultaneously empty, evaluated under a single lock acquisition so
// no task can be "in flight" in a way this check misses.
func (s *Stage) IsQuiescent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready) == 0 && s.delayed.Len() == 0 && len(s.inFlight) == 0 && len(s.deferr) == 0
}

// Snapshot returns a copy of the current metrics.
func (s *Stage) Snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

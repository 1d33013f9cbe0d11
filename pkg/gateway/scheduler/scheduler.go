// Package scheduler implements the single-threaded, cooperative,
// time-driven task loop. Exactly one goroutine — the one running Run —
// ever calls Task.Execute; every other goroutine that wants work done
// must go through Submit, which is the sole thread-safe entry point into
// the loop.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/srcful-labs/energygateway/pkg/gateway/clock"
	"github.com/srcful-labs/energygateway/pkg/gateway/metrics"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
)

// Epsilon is the minimum remaining delay worth sleeping for; shorter waits
// are skipped and the task executes immediately.
const Epsilon = 10 * time.Millisecond

// PastDueGrace is how far past "now" a late task is clamped to when it is
// enqueued with a due time already in the past.
const PastDueGrace = 100 * time.Millisecond

// Scheduler runs the priority-time loop over a heap of pending tasks. Create
// one with New and call Run in its own goroutine; Submit is safe to call
// from any goroutine, including from Run's own goroutine (a task
// rescheduling itself).
type Scheduler struct {
	clock  *clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	heap    taskHeap
	nextSeq uint64

	// wake is signalled whenever Submit adds a task that might change the
	// earliest due time, so Run's sleep can be interrupted.
	wake chan struct{}

	// state is the loop's current life-cycle state.
	state State

	done chan struct{}
}

// State mirrors the scheduler's three run states.
type State int

const (
	StateIdle State = iota
	StateSleeping
	StateRunning
)

// New constructs a Scheduler. It does not start running — call Run.
func New(clk *clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Scheduler{
		clock:  clk,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Submit enqueues t, thread-safe, from any goroutine. If t's due time is
// already in the past it is clamped forward by PastDueGrace and logged
// at info.
func (s *Scheduler) Submit(t task.Task) {
	if t == nil {
		return
	}
	now := s.clock.TimeMs()
	due := t.DueTime()
	if due < now {
		s.logger.Info("scheduler: task due time in the past, clamping",
			"due", due, "now", now, "task", fmt.Sprintf("%T", t),
		)
		due = now + PastDueGrace.Milliseconds()
	}

	s.mu.Lock()
	s.nextSeq++
	heap.Push(&s.heap, entry{t: t, due: due, seq: s.nextSeq})
	depth := len(s.heap)
	s.mu.Unlock()

	metrics.SchedulerQueueDepth.Set(float64(depth))
	s.signalWake()
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Len reports the number of pending tasks (for monitoring/tests).
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// Run executes the scheduling loop until ctx is cancelled. It must be called
// from exactly one goroutine for the lifetime of the Scheduler.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.Lock()
		if len(s.heap) == 0 {
			s.mu.Unlock()
			s.state = StateIdle
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		next := s.heap[0]
		s.mu.Unlock()

		now := s.clock.TimeMs()
		delay := time.Duration(next.due-now) * time.Millisecond

		if delay > Epsilon {
			s.state = StateSleeping
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.wake:
				timer.Stop()
				// A new (possibly earlier) task arrived — re-evaluate the heap.
				continue
			case <-timer.C:
			}
		}

		s.mu.Lock()
		if len(s.heap) == 0 {
			s.mu.Unlock()
			continue
		}
		popped := heap.Pop(&s.heap).(entry)
		depth := len(s.heap)
		s.mu.Unlock()

		metrics.SchedulerQueueDepth.Set(float64(depth))
		s.runOne(ctx, popped.t)
	}
}

// runOne executes a single task with panic isolation and enqueues
// whatever follow-up it produced.
func (s *Scheduler) runOne(ctx context.Context, t task.Task) {
	s.state = StateRunning
	now := s.clock.TimeMs()

	follow := s.executeSafely(t, now)
	for _, f := range follow.Tasks() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.Submit(f)
	}
}

// executeSafely recovers a panicking Execute and treats it as "nothing" —
// a catch-log-and-continue isolation policy applied here to in-process
// faults instead of network errors.
func (s *Scheduler) executeSafely(t task.Task, now int64) (follow task.FollowUp) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: task panicked, dropping",
				"task", fmt.Sprintf("%T", t),
				"panic", fmt.Sprintf("%v", r),
			)
			follow = task.Nothing()
		}
	}()
	return t.Execute(now)
}

// Stop waits for Run to return. The caller must cancel Run's context first.
func (s *Scheduler) Stop() {
	<-s.done
}

// Clock returns the scheduler's clock, shared with the blackboard so that
// TimeMs() agrees everywhere.
func (s *Scheduler) Clock() *clock.Clock {
	return s.clock
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

package httpapi

import (
	"sync"

	"github.com/srcful-labs/energygateway/pkg/gateway/task"
)

// Queue is the HTTP control surface's outbound work buffer: every POST
// handler that validates a request successfully pushes the task it built
// here instead of calling the blackboard's submission port directly, so
// that the webdispatch task (running on the scheduler goroutine) is the
// only thing that ever hands these tasks to the scheduler. Handlers never
// touch the scheduler's queue directly.
type Queue struct {
	mu    sync.Mutex
	items []task.Task
}

// NewQueue constructs an empty outbound queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends t. Safe for concurrent use from any number of request
// goroutines.
func (q *Queue) Enqueue(t task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
}

// Drain removes and returns up to max queued items, oldest first. Satisfies
// webdispatch.Queue.
func (q *Queue) Drain(max int) []task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > len(q.items) {
		max = len(q.items)
	}
	out := q.items[:max]
	q.items = q.items[max:]
	return out
}

// Len reports how many items are currently buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

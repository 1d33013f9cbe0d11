package scheduler

import (
	"container/heap"

	"github.com/srcful-labs/energygateway/pkg/gateway/task"
)

// entry wraps a Task with the FIFO sequence number used to break ties
// between tasks that share the same due time.
type entry struct {
	t   task.Task
	due int64
	seq uint64
}

// taskHeap is a container/heap.Interface ordering entries by due time, then
// by insertion order (seq). container/heap is the stdlib mechanism the Go
// ecosystem reaches for here, used directly rather than hand-rolling a
// binary heap — see DESIGN.md.
type taskHeap []entry

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(entry))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

var _ heap.Interface = (*taskHeap)(nil)

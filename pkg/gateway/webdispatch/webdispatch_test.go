package webdispatch_test

import (
	"testing"

	"golang.org/x/time/rate"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/clock"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
	"github.com/srcful-labs/energygateway/pkg/gateway/webdispatch"
)

type fakeTask struct{ due int64 }

func (f *fakeTask) DueTime() int64            { return f.due }
func (f *fakeTask) Execute(int64) task.FollowUp { return task.Nothing() }

type fakeQueue struct {
	pending []task.Task
}

func (q *fakeQueue) Drain(max int) []task.Task {
	if max > len(q.pending) {
		max = len(q.pending)
	}
	out := q.pending[:max]
	q.pending = q.pending[max:]
	return out
}

func TestTask_DrainsUpToMaxPerTickAndReschedules(t *testing.T) {
	var pending []task.Task
	for i := 0; i < 20; i++ {
		pending = append(pending, &fakeTask{due: int64(i)})
	}
	q := &fakeQueue{pending: pending}
	bb := blackboard.New(clock.New(), nil, 0)

	wd := webdispatch.New(0, bb, q, nil)
	follow := wd.Execute(1000)

	tasks := follow.Tasks()
	if len(tasks) != 1 || tasks[0] != task.Task(wd) {
		t.Fatalf("expected the task to reschedule itself, got %v", tasks)
	}
	if wd.DueTime() != 1000+100 {
		t.Fatalf("expected due time %d, got %d", 1000+100, wd.DueTime())
	}
	if len(q.pending) != 20-webdispatch.MaxDrainPerTick {
		t.Fatalf("expected %d items left in the queue, got %d", 20-webdispatch.MaxDrainPerTick, len(q.pending))
	}
}

func TestTask_EmptyQueueStillReschedules(t *testing.T) {
	q := &fakeQueue{}
	bb := blackboard.New(clock.New(), nil, 0)

	wd := webdispatch.New(0, bb, q, nil)
	follow := wd.Execute(1000)

	if len(follow.Tasks()) != 1 {
		t.Fatal("expected the task to reschedule itself even with nothing to drain")
	}
}

func TestTask_RespectsLimiterBurst(t *testing.T) {
	var pending []task.Task
	for i := 0; i < 20; i++ {
		pending = append(pending, &fakeTask{due: int64(i)})
	}
	q := &fakeQueue{pending: pending}
	bb := blackboard.New(clock.New(), nil, 0)

	limiter := rate.NewLimiter(rate.Inf, 5)
	wd := webdispatch.New(0, bb, q, limiter)
	wd.Execute(1000)

	if len(q.pending) != 20-5 {
		t.Fatalf("expected the limiter's burst size to cap the drain, got %d left", len(q.pending))
	}
}

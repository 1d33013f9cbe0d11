// Package webdispatch implements the task that bridges the HTTP control
// surface's outbound work queue into the scheduler: the web server's
// handlers enqueue tasks they produce (opening a device, running a
// command-write) rather than submitting them directly, and this task is the
// only thing that ever drains that queue.
package webdispatch

import (
	"golang.org/x/time/rate"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
)

// MaxDrainPerTick bounds how many queued items a single tick will submit,
// so one web client cannot flood a tick and starve the scheduler loop.
const MaxDrainPerTick = 16

// tickIntervalMs is how far in the future the task reschedules itself after
// every tick, drained or not.
const tickIntervalMs = 100

// Queue is the outbound work queue the HTTP control surface publishes to.
// Drain must return immediately with whatever is available, never block.
type Queue interface {
	Drain(max int) []task.Task
}

// Task drains Queue into the blackboard's submission port every tick, paced
// by a token-bucket limiter so a backend outage or a flood of web requests
// cannot starve the scheduler of wall-clock.
type Task struct {
	due     int64
	bb      *blackboard.BlackBoard
	queue   Queue
	limiter *rate.Limiter
}

// New constructs a web-dispatch task due at due. limiter may be nil, in
// which case drains are unpaced.
func New(due int64, bb *blackboard.BlackBoard, queue Queue, limiter *rate.Limiter) *Task {
	return &Task{due: due, bb: bb, queue: queue, limiter: limiter}
}

func (t *Task) DueTime() int64 { return t.due }

func (t *Task) Execute(now int64) task.FollowUp {
	n := MaxDrainPerTick
	if t.limiter != nil {
		if burst := t.limiter.Burst(); burst < n {
			n = burst
		}
		// Drain only what the limiter can admit right now, so every drained
		// item is submitted and the rest stay queued for a later tick.
		if avail := int(t.limiter.Tokens()); avail < n {
			n = avail
		}
	}

	items := t.queue.Drain(n)
	for _, item := range items {
		if t.limiter != nil && !t.limiter.Allow() {
			break
		}
		t.bb.Submit(item)
	}

	t.due = now + tickIntervalMs
	return task.One(t)
}

// Package task defines the scheduling contract shared by every unit of work
// the scheduler runs: the Task interface and the FollowUp variant it returns.
//
// The source this gateway is modelled on used exceptions-as-control-flow and
// duck-typed return values (a task, a list of tasks, or None). Here that is
// replaced with an explicit tagged union: a Task's Execute always returns a
// FollowUp, constructed with Nothing, One, or Many. This package is the
// scheduler's only view of the work it runs.
package task

// Task is the abstract unit of scheduled work: a due time and an execute
// step. A task is mutable only by itself and only during its own execution;
// DueTime must reflect any change Execute made to its own schedule by the
// time Execute returns.
type Task interface {
	// DueTime is the time (milliseconds, scheduler clock) at which the task
	// should next run. The scheduler reads this once per enqueue.
	DueTime() int64

	// Execute runs the task's body for the tick at now and returns whatever
	// follow-up work it produces. now is always >= DueTime() at the time of
	// the call, modulo the scheduler's epsilon.
	Execute(now int64) FollowUp
}

// FollowUp is the result of executing a Task: no further work, one
// replacement/child task, or an ordered sequence of tasks. The zero value is
// Nothing().
type FollowUp struct {
	tasks []Task
}

// Nothing represents a task that has completed and should not be rescheduled.
func Nothing() FollowUp {
	return FollowUp{}
}

// One wraps a single follow-up task (commonly the task rescheduling itself).
func One(t Task) FollowUp {
	if t == nil {
		return Nothing()
	}
	return FollowUp{tasks: []Task{t}}
}

// Many wraps an ordered sequence of follow-up tasks. The scheduler enqueues
// them in the given order, atomically with respect to other producers.
func Many(ts ...Task) FollowUp {
	var out []Task
	for _, t := range ts {
		if t != nil {
			out = append(out, t)
		}
	}
	return FollowUp{tasks: out}
}

// IsEmpty reports whether the FollowUp carries no tasks.
func (f FollowUp) IsEmpty() bool {
	return len(f.tasks) == 0
}

// Tasks returns the ordered list of follow-up tasks, possibly empty.
func (f FollowUp) Tasks() []Task {
	return f.tasks
}

// Package clock provides the monotonic millisecond clock and the monotonic
// id generators shared by every other package in the gateway. Nothing here
// depends on any other internal package.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock exposes the monotonic time base the scheduler and blackboard use for
// all due-time arithmetic. It is never rewound by wall-clock adjustments.
type Clock struct {
	start time.Time
}

// New returns a Clock whose epoch is the instant it was created.
func New() *Clock {
	return &Clock{start: time.Now()}
}

// StartTime is the millisecond timestamp of the instant the clock was
// created. It never changes for the lifetime of the process.
func (c *Clock) StartTime() int64 {
	return c.start.UnixMilli()
}

// TimeMs returns the current time in milliseconds since the clock's epoch,
// offset by StartTime. time.Since reads the monotonic clock reading carried
// inside start, so NTP wall-clock jumps never perturb scheduling decisions.
// TimeMs() >= StartTime() always holds.
func (c *Clock) TimeMs() int64 {
	return c.StartTime() + time.Since(c.start).Milliseconds()
}

// IDGenerator produces strictly increasing int64 ids, used for the message
// log.
type IDGenerator struct {
	next int64
}

// NewIDGenerator returns a generator whose first Next() call yields 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next strictly increasing id. Safe for concurrent use.
func (g *IDGenerator) Next() int64 {
	return atomic.AddInt64(&g.next, 1)
}

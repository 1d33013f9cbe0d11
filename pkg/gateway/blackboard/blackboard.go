// Package blackboard implements the process-wide shared state: the device
// registry, the settings document, the message log, the shared clock, and
// the task-submission port that lets HTTP handlers push new work into the
// scheduler without depending on it directly.
package blackboard

import (
	"github.com/srcful-labs/energygateway/pkg/gateway/clock"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
)

// Submitter is the scheduler's Submit method, held as an interface so this
// package never imports the scheduler; app.go constructs both and wires
// them together.
type Submitter interface {
	Submit(t task.Task)
}

// BlackBoard is the shared state every task and every HTTP handler reads
// and writes. There is exactly one instance per running gateway.
type BlackBoard struct {
	Devices  *DeviceRegistry
	Settings *Settings
	Messages *MessageLog

	clk          *clock.Clock
	submit       Submitter
	restPort     int
}

// New constructs a BlackBoard sharing clk with the scheduler and
// delivering submitted tasks to submit.
func New(clk *clock.Clock, submit Submitter, restPort int) *BlackBoard {
	if clk == nil {
		clk = clock.New()
	}
	return &BlackBoard{
		Devices:  newDeviceRegistry(),
		Settings: newSettings(),
		Messages: newMessageLog(clk),
		clk:      clk,
		submit:   submit,
		restPort: restPort,
	}
}

// TimeMs returns the current scheduler-clock time in milliseconds.
func (bb *BlackBoard) TimeMs() int64 { return bb.clk.TimeMs() }

// StartTime returns the millisecond timestamp the gateway started at.
func (bb *BlackBoard) StartTime() int64 { return bb.clk.StartTime() }

// RestPort is the port the embedded HTTP control surface listens on,
// surfaced to clients via GET /api/network/address.
func (bb *BlackBoard) RestPort() int { return bb.restPort }

// Submit enqueues an externally-constructed task into the scheduler. HTTP
// handlers use this to turn a validated request into scheduled work.
func (bb *BlackBoard) Submit(t task.Task) {
	if bb.submit == nil || t == nil {
		return
	}
	bb.submit.Submit(t)
}

// OpenDevice is a convenience used by OpenDeviceTask: terminate and remove
// every currently registered device, then add d.
func (bb *BlackBoard) OpenDevice(d device.Device) {
	for _, existing := range bb.Devices.List() {
		existing.Terminate()
		bb.Devices.Remove(existing)
	}
	bb.Devices.Add(d)
}

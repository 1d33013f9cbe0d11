// Package opendevice implements the task that establishes a device
// session and, on success, retires whatever session preceded it and
// kicks off harvesting.
package opendevice

import (
	"log/slog"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/harvest"
	"github.com/srcful-labs/energygateway/pkg/gateway/secureelement"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
	"github.com/srcful-labs/energygateway/pkg/gateway/transport"
)

// harvestDelayMs is how far past the device opening now the first harvest
// tick is scheduled.
const harvestDelayMs = 10000

// retryDelayMs is how far in the future OpenDeviceTask reschedules itself
// after a failed open attempt.
const retryDelayMs = 10000

// Task establishes dev's connection. On success it supersedes every
// device currently in the registry and returns a Harvest task due
// harvestDelayMs later; on failure it reschedules itself retryDelayMs
// later so a transient connection failure doesn't strand the gateway
// without any device.
type Task struct {
	due       int64
	bb        *blackboard.BlackBoard
	dev       device.Device
	se        secureelement.SecureElement
	client    transport.Doer
	uploadURL string
	logger    *slog.Logger
}

// New constructs an OpenDeviceTask due at due that, once it opens dev,
// hands the secure element and HTTP client through to every Harvest (and
// in turn every HarvestTransport) it spawns.
func New(due int64, bb *blackboard.BlackBoard, dev device.Device, se secureelement.SecureElement, client transport.Doer, uploadURL string, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Task{due: due, bb: bb, dev: dev, se: se, client: client, uploadURL: uploadURL, logger: logger}
}

func (t *Task) DueTime() int64 { return t.due }

func (t *Task) Execute(now int64) task.FollowUp {
	if err := t.dev.Open(); err != nil {
		t.logger.Info("opendevice: failed to open device, retrying",
			"device", t.dev.ID(), "error", err)
		t.due = now + retryDelayMs
		return task.One(t)
	}

	t.bb.OpenDevice(t.dev)
	h := harvest.New(now+harvestDelayMs, t.bb, t.dev, t.se, t.client, t.uploadURL, t.logger)
	return task.One(h)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

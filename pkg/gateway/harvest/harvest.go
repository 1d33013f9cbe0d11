// Package harvest implements the per-device polling state machine:
// adaptive backoff, a "barn" of accumulated samples, and periodic spawn
// of a batched upload task.
package harvest

import (
	"log/slog"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/metrics"
	"github.com/srcful-labs/energygateway/pkg/gateway/secureelement"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
	"github.com/srcful-labs/energygateway/pkg/gateway/transport"
)

// NBatch is the barn capacity threshold that triggers a transport.
const NBatch = 10

// Harvest polls a single device every tick, reopening it first if its
// connection has dropped, accumulating successful reads into an
// in-memory batch, and spawning a HarvestTransport once the batch
// reaches NBatch entries, gated on the previous transport (if any)
// having replied.
type Harvest struct {
	due     int64
	bb      *blackboard.BlackBoard
	dev     device.Device
	se      secureelement.SecureElement
	client  transport.Doer
	uploadURL string
	logger  *slog.Logger

	backoff Backoff
	barn    map[int64]device.Registers

	transport *HarvestTransport
}

// New constructs a Harvest task due at due, polling dev. client and
// uploadURL are passed straight through to every HarvestTransport this
// task spawns.
func New(due int64, bb *blackboard.BlackBoard, dev device.Device, se secureelement.SecureElement, client transport.Doer, uploadURL string, logger *slog.Logger) *Harvest {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Harvest{
		due:       due,
		bb:        bb,
		dev:       dev,
		se:        se,
		client:    client,
		uploadURL: uploadURL,
		logger:    logger,
		backoff:   NewBackoff(),
		barn:      make(map[int64]device.Registers),
	}
}

func (h *Harvest) DueTime() int64 { return h.due }

// Execute reopens dev if its connection has dropped, reads one register
// snapshot, folds it into the backoff and barn state (a failed read with
// the backoff already at its ceiling also closes dev), and once the barn
// reaches NBatch entries spawns a HarvestTransport of the accumulated
// barn — unless the previous transport this task spawned hasn't replied
// yet, in which case the barn keeps growing instead.
func (h *Harvest) Execute(now int64) task.FollowUp {
	if h.dev.IsTerminated() {
		return task.Nothing()
	}

	if !h.dev.IsOpen() {
		if err := h.dev.Open(); err != nil {
			h.backoff.Failure()
			h.due = now + h.backoff.CurrentMs
			metrics.DeviceBackoffMs.WithLabelValues(h.dev.ID()).Set(float64(h.backoff.CurrentMs))
			h.logMessage(blackboard.MessageWarning, "harvest reopen failed: "+err.Error())
			metrics.HarvestFailuresTotal.WithLabelValues(h.dev.ID()).Inc()
			return task.One(h)
		}
	}

	data, err := h.dev.ReadHarvestData()
	if err != nil {
		wasAtMax := h.backoff.AtMax()
		h.backoff.Failure()
		if wasAtMax {
			// Drop the connection so the next tick reopens it.
			h.dev.Close()
		}
		h.logMessage(blackboard.MessageWarning, "harvest read failed: "+err.Error())
		metrics.HarvestFailuresTotal.WithLabelValues(h.dev.ID()).Inc()
	} else {
		h.barn[now] = data
		h.backoff.Success()
		metrics.HarvestSamplesTotal.WithLabelValues(h.dev.ID()).Inc()
	}
	h.due = now + h.backoff.CurrentMs
	metrics.DeviceBackoffMs.WithLabelValues(h.dev.ID()).Set(float64(h.backoff.CurrentMs))

	if len(h.barn) >= NBatch && (h.transport == nil || h.transport.Replied()) {
		snapshot := h.barn
		h.barn = make(map[int64]device.Registers)
		ht := NewHarvestTransport(now, h.se, h.client, h.uploadURL, snapshot, h.dev.Type(), h.dev.ID())
		h.transport = ht
		return task.Many(h, ht)
	}
	return task.One(h)
}

func (h *Harvest) logMessage(kind blackboard.MessageKind, text string) {
	if h.bb == nil {
		return
	}
	h.bb.Messages.Append(kind, text)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

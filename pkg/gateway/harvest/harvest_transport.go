package harvest

import (
	"fmt"

	"github.com/srcful-labs/energygateway/pkg/gateway/deadletter"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/metrics"
	"github.com/srcful-labs/energygateway/pkg/gateway/secureelement"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
	"github.com/srcful-labs/energygateway/pkg/gateway/transport"
)

// HarvestTransport is the batched, signed upload of one barn snapshot,
// built on transport.Call: BuildPayload signs the batch with the secure
// element, OnOK marks the transport replied so its owning Harvest task
// may spawn the next one, and OnError gives up rather than retrying
// forever on a rejected batch.
type HarvestTransport struct {
	call     *transport.Call
	se       secureelement.SecureElement
	barn     map[int64]device.Registers
	invType  string
	deviceID string
	replied  bool
}

// NewHarvestTransport constructs a transport due at due, POSTing barn
// (a sample-timestamp → register-snapshot batch) tagged with invType to
// url via client, signed using se. deviceID labels the transport's
// Prometheus counters.
func NewHarvestTransport(due int64, se secureelement.SecureElement, client transport.Doer, url string, barn map[int64]device.Registers, invType string, deviceID string) *HarvestTransport {
	ht := &HarvestTransport{se: se, barn: barn, invType: invType, deviceID: deviceID}
	call := transport.NewCall(due, url, client)
	call.BuildPayload = ht.buildPayload
	call.OnOK = ht.onOK
	call.OnError = ht.onError
	ht.call = call
	return ht
}

func (ht *HarvestTransport) DueTime() int64 { return ht.call.DueTime() }

func (ht *HarvestTransport) Execute(now int64) task.FollowUp {
	return ht.call.Execute(now)
}

// Replied reports whether this transport has reached a terminal outcome
// (accepted, or given up) — the gate Harvest.Execute checks before
// spawning a new transport.
func (ht *HarvestTransport) Replied() bool {
	return ht.replied
}

func (ht *HarvestTransport) buildPayload() (map[string]any, error) {
	ht.se.Acquire()
	defer ht.se.Release()

	serial := ht.se.SerialNumber()
	signature, err := ht.se.Sign(fmt.Sprintf("%s:%s:%d", serial, ht.invType, len(ht.barn)))
	if err != nil {
		return nil, fmt.Errorf("harvest transport: sign: %w", err)
	}

	return map[string]any{
		"serial":    serial,
		"signature": signature,
		"type":      ht.invType,
		"data":      ht.barn,
	}, nil
}

func (ht *HarvestTransport) onOK(body []byte) task.FollowUp {
	ht.replied = true
	metrics.TransportsTotal.WithLabelValues(ht.deviceID, "ok").Inc()
	return task.Nothing()
}

// onError splits transient from permanent failure: a network-level
// failure (statusCode == 0) is retried after the base backoff interval,
// each time it happens; an actual server response — whatever its status — drops the batch. A
// production backend would distinguish 5xx (retryable) from 4xx
// (permanent); this gateway's reference backend integration never
// returns a body worth parsing on error, so both map to drop.
func (ht *HarvestTransport) onError(statusCode int) int64 {
	if statusCode == 0 {
		metrics.TransportsTotal.WithLabelValues(ht.deviceID, "error").Inc()
		return MinBackoffMs
	}
	ht.replied = true
	metrics.TransportsTotal.WithLabelValues(ht.deviceID, "fatal").Inc()
	deadletter.Record(ht.call.DueTime(), ht.deviceID, ht.invType, ht.barn)
	return 0
}

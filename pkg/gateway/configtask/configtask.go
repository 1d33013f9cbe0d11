// Package configtask implements the three periodic backend-configuration
// calls: GetSettingsTask pulls the gateway's configuration document,
// SaveSettingsTask pushes the current one back, and GetNameTask pulls
// the gateway's display name. All three are built on transport.Call
// exactly the way HarvestTransport is.
package configtask

import (
	"encoding/json"
	"fmt"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/secureelement"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
	"github.com/srcful-labs/energygateway/pkg/gateway/transport"
)

// DefaultPeriodMs is how far in the future a successful GetSettingsTask or
// GetNameTask reschedules its own successor: an hour is a reasonable
// steady-state poll interval for a configuration document that rarely
// changes.
const DefaultPeriodMs = 3_600_000

// errorRetryMs is how soon a failed call (network or non-200) retries,
// matching harvest's base backoff interval rather than the full period.
const errorRetryMs = 1000

// configResponse mirrors the GraphQL envelope the backend returns for a
// configuration query: data.gatewayConfiguration.configuration.
type configResponse struct {
	Data struct {
		GatewayConfiguration struct {
			Configuration map[string]any `json:"configuration"`
		} `json:"gatewayConfiguration"`
	} `json:"data"`
}

// nameResponse mirrors the GraphQL envelope the backend returns for a
// gateway-name query: data.gatewayConfiguration.gatewayName.name.
type nameResponse struct {
	Data struct {
		GatewayConfiguration struct {
			GatewayName struct {
				Name string `json:"name"`
			} `json:"gatewayName"`
		} `json:"gatewayConfiguration"`
	} `json:"data"`
}

// GetSettingsTask asks the backend for the gateway's configuration
// document and, on success, merges it into the blackboard's Settings
// tagged Backend. If the backend reports a present-but-empty
// configuration it falls back to a SaveSettingsTask that persists the
// gateway's current settings instead.
type GetSettingsTask struct {
	call   *transport.Call
	bb     *blackboard.BlackBoard
	se     secureelement.SecureElement
	client transport.Doer
	url    string
}

// NewGetSettingsTask constructs a GetSettingsTask due at due.
func NewGetSettingsTask(due int64, bb *blackboard.BlackBoard, se secureelement.SecureElement, client transport.Doer, url string) *GetSettingsTask {
	t := &GetSettingsTask{bb: bb, se: se, client: client, url: url}
	call := transport.NewCall(due, url, client)
	call.BuildPayload = t.buildPayload
	call.OnOK = t.onOK
	call.OnError = func(statusCode int) int64 { return errorRetryMs }
	t.call = call
	return t
}

func (t *GetSettingsTask) DueTime() int64 { return t.call.DueTime() }

func (t *GetSettingsTask) Execute(now int64) task.FollowUp {
	follow := t.call.Execute(now)
	// A retry comes back as the inner Call; reschedule this task instead.
	if ts := follow.Tasks(); len(ts) == 1 && ts[0] == task.Task(t.call) {
		return task.One(t)
	}
	return follow
}

func (t *GetSettingsTask) buildPayload() (map[string]any, error) {
	return signedQuery(t.se, `{ gatewayConfiguration { configuration(subKey: "settings") { data } } }`)
}

func (t *GetSettingsTask) onOK(body []byte) task.FollowUp {
	var resp configResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return task.One(NewGetSettingsTask(t.call.DueTime()+errorRetryMs, t.bb, t.se, t.client, t.url))
	}

	next := NewGetSettingsTask(t.call.DueTime()+DefaultPeriodMs, t.bb, t.se, t.client, t.url)
	if len(resp.Data.GatewayConfiguration.Configuration) == 0 {
		save := NewSaveSettingsTask(t.call.DueTime(), t.bb, t.se, t.client, t.url)
		return task.Many(save, next)
	}

	t.bb.Settings.UpdateFromMap(resp.Data.GatewayConfiguration.Configuration, blackboard.ChangeSourceBackend)
	return task.One(next)
}

// SaveSettingsTask persists the blackboard's current Settings snapshot
// back to the backend. Fire-and-forget on success; a network-level
// failure is retried after errorRetryMs, each time it happens, while any
// non-200 server response drops the task, matching HarvestTransport's
// network-vs-response split.
type SaveSettingsTask struct {
	call *transport.Call
	bb   *blackboard.BlackBoard
	se   secureelement.SecureElement
}

// NewSaveSettingsTask constructs a SaveSettingsTask due at due.
func NewSaveSettingsTask(due int64, bb *blackboard.BlackBoard, se secureelement.SecureElement, client transport.Doer, url string) *SaveSettingsTask {
	t := &SaveSettingsTask{bb: bb, se: se}
	call := transport.NewCall(due, url, client)
	call.BuildPayload = t.buildPayload
	call.OnOK = func([]byte) task.FollowUp { return task.Nothing() }
	call.OnError = func(statusCode int) int64 {
		if statusCode == 0 {
			return errorRetryMs
		}
		return 0
	}
	t.call = call
	return t
}

func (t *SaveSettingsTask) DueTime() int64 { return t.call.DueTime() }

func (t *SaveSettingsTask) Execute(now int64) task.FollowUp { return t.call.Execute(now) }

func (t *SaveSettingsTask) buildPayload() (map[string]any, error) {
	payload, err := signedQuery(t.se, "")
	if err != nil {
		return nil, err
	}
	payload["settings"] = t.bb.Settings.Snapshot()
	return payload, nil
}

// GetNameTask asks the backend for the gateway's display name. The
// retrieved value is held on the task itself rather than on the shared
// blackboard, and Name reports the most recently retrieved value.
type GetNameTask struct {
	call   *transport.Call
	se     secureelement.SecureElement
	bb     *blackboard.BlackBoard
	client transport.Doer
	url    string
	name   string
}

// NewGetNameTask constructs a GetNameTask due at due.
func NewGetNameTask(due int64, bb *blackboard.BlackBoard, se secureelement.SecureElement, client transport.Doer, url string) *GetNameTask {
	t := &GetNameTask{bb: bb, se: se, client: client, url: url}
	call := transport.NewCall(due, url, client)
	call.BuildPayload = t.buildPayload
	call.OnOK = t.onOK
	call.OnError = func(statusCode int) int64 { return errorRetryMs }
	t.call = call
	return t
}

func (t *GetNameTask) DueTime() int64 { return t.call.DueTime() }

func (t *GetNameTask) Execute(now int64) task.FollowUp {
	follow := t.call.Execute(now)
	// A retry comes back as the inner Call; reschedule this task instead.
	if ts := follow.Tasks(); len(ts) == 1 && ts[0] == task.Task(t.call) {
		return task.One(t)
	}
	return follow
}

// Name returns the most recently retrieved gateway display name, or the
// empty string if no successful call has completed yet.
func (t *GetNameTask) Name() string { return t.name }

func (t *GetNameTask) buildPayload() (map[string]any, error) {
	return signedQuery(t.se, `{ gatewayConfiguration { gatewayName { name } } }`)
}

func (t *GetNameTask) onOK(body []byte) task.FollowUp {
	var resp nameResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		t.name = resp.Data.GatewayConfiguration.GatewayName.Name
	}
	next := NewGetNameTask(t.call.DueTime()+DefaultPeriodMs, t.bb, t.se, t.client, t.url)
	return task.One(next)
}

// signedQuery acquires the secure element, signs the gateway's identity,
// and wraps query in the GraphQL envelope every backend call in this
// package sends.
func signedQuery(se secureelement.SecureElement, query string) (map[string]any, error) {
	se.Acquire()
	defer se.Release()

	serial := se.SerialNumber()
	signature, err := se.Sign(serial)
	if err != nil {
		return nil, fmt.Errorf("configtask: sign: %w", err)
	}

	return map[string]any{
		"query":     query,
		"serial":    serial,
		"signature": signature,
	}, nil
}

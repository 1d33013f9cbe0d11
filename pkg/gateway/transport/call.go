// Package transport implements the reusable authenticated-HTTPS-call
// template every periodic remote task in this gateway is built from:
// harvest upload, settings pull/push, and gateway-name pull all POST a
// signed JSON payload and branch on the response the same way.
package transport

import (
	"bytes"
	"io"
	"net/http"

	"github.com/srcful-labs/energygateway/pkg/gateway/task"
	"github.com/srcful-labs/energygateway/pkg/gateway/wireformat"
)

// defaultFormatter serialises every Call's payload. It's a package-level
// default rather than a Call field because every concrete task builds its
// Call the same way (NewCall(due, url, client)) and none has a reason to
// format its payload differently.
var defaultFormatter wireformat.Formatter = wireformat.New(wireformat.Config{}, nil)

// State mirrors the Pending→InFlight→{OK,Error,Fatal} life cycle every
// remote call in this gateway goes through.
type State int

const (
	StatePending State = iota
	StateInFlight
	StateOK
	StateError
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in-flight"
	case StateOK:
		return "ok"
	case StateError:
		return "error"
	case StateFatal:
		return "fatal"
	default:
		return "pending"
	}
}

// Doer is the collaborator Call posts through — satisfied by *http.Client,
// and by a hand-rolled stub in tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Call is the generic POST-JSON-get-JSON template. Every concrete remote
// task (HarvestTransport, GetSettingsTask, SaveSettingsTask, GetNameTask)
// builds one of these and supplies BuildPayload/OnOK/OnError as closures
// that close over the task's own fields — Go has no template-method
// inheritance, so closures are the idiomatic stand-in for a shared base
// class here.
type Call struct {
	due    int64
	url    string
	client Doer
	state  State

	// BuildPayload returns the JSON body to POST.
	BuildPayload func() (map[string]any, error)

	// OnOK handles a 200 response body and returns follow-up work.
	OnOK func(body []byte) task.FollowUp

	// OnError handles a non-200 response or a network-level failure
	// (statusCode == 0 in that case) and returns the retry delay in
	// milliseconds. A value <= 0 means give up: the call resolves to
	// Fatal and no follow-up is scheduled — drop, don't busy-loop.
	OnError func(statusCode int) int64
}

// NewCall constructs a pending Call due at due, posting to url via client.
func NewCall(due int64, url string, client Doer) *Call {
	return &Call{due: due, url: url, client: client, state: StatePending}
}

func (c *Call) DueTime() int64 { return c.due }

func (c *Call) State() State { return c.state }

// Execute runs one attempt: build the payload, POST it, and dispatch to
// OnOK or OnError depending on the outcome. DueTime reports now while the
// attempt runs, so OnOK can schedule successors relative to it.
func (c *Call) Execute(now int64) task.FollowUp {
	c.due = now
	c.state = StateInFlight

	payload, err := c.BuildPayload()
	if err != nil {
		return c.fail(now, 0)
	}

	body, err := defaultFormatter.Format(payload)
	if err != nil {
		return c.fail(now, 0)
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return c.fail(now, 0)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(now, 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(now, 0)
	}

	if resp.StatusCode != http.StatusOK {
		return c.fail(now, resp.StatusCode)
	}

	c.state = StateOK
	return c.OnOK(respBody)
}

func (c *Call) fail(now int64, statusCode int) task.FollowUp {
	c.state = StateError
	retry := c.OnError(statusCode)
	if retry <= 0 {
		c.state = StateFatal
		return task.Nothing()
	}
	c.due = now + retry
	return task.One(c)
}

// Reschedule sets a new due time and returns the Call to Pending, for a
// caller that retries the same Call instance outside of the normal OnError
// path. Nothing in this gateway calls it at present.
func (c *Call) Reschedule(due int64) {
	c.due = due
	c.state = StatePending
}

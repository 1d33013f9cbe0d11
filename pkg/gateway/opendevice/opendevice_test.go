package opendevice_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/clock"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/harvest"
	"github.com/srcful-labs/energygateway/pkg/gateway/opendevice"
	"github.com/srcful-labs/energygateway/pkg/gateway/secureelement"
)

type fakeDevice struct {
	id       string
	openErr  error
	openCalls int
}

func (f *fakeDevice) Open() error {
	f.openCalls++
	return f.openErr
}
func (f *fakeDevice) Close() error                                    { return nil }
func (f *fakeDevice) IsOpen() bool                                    { return f.openErr == nil }
func (f *fakeDevice) Terminate() error                                 { return nil }
func (f *fakeDevice) IsTerminated() bool                               { return false }
func (f *fakeDevice) ID() string                                       { return f.id }
func (f *fakeDevice) Type() string                                     { return "generic" }
func (f *fakeDevice) ReadHarvestData() (device.Registers, error)       { return nil, nil }
func (f *fakeDevice) WriteRegisters(start int, values []uint16) error  { return nil }

type fakeSecureElement struct{}

func (fakeSecureElement) Acquire()                           {}
func (fakeSecureElement) Release()                           {}
func (fakeSecureElement) SerialNumber() string                { return "x" }
func (fakeSecureElement) Sign(message string) (string, error) { return "sig", nil }

type neverDoer struct{}

func (neverDoer) Do(req *http.Request) (*http.Response, error) { return nil, errors.New("not reached") }

func TestOpenDeviceTask_SuccessSupersedesAndSpawnsHarvest(t *testing.T) {
	bb := blackboard.New(clock.New(), nil, 0)
	old := &fakeDevice{id: "old"}
	bb.Devices.Add(old)

	newDev := &fakeDevice{id: "new"}
	ot := opendevice.New(0, bb, newDev, fakeSecureElement{}, neverDoer{}, "https://example.invalid/", nil)

	follow := ot.Execute(1000)
	tasks := follow.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected exactly one follow-up, got %d", len(tasks))
	}
	h, ok := tasks[0].(*harvest.Harvest)
	if !ok {
		t.Fatalf("expected a *harvest.Harvest follow-up, got %T", tasks[0])
	}
	if h.DueTime() != 1000+10000 {
		t.Fatalf("expected harvest due at %d, got %d", 1000+10000, h.DueTime())
	}

	devices := bb.Devices.List()
	if len(devices) != 1 || devices[0].ID() != "new" {
		t.Fatalf("expected only the new device registered, got %v", devices)
	}
}

func TestOpenDeviceTask_FailureReschedulesSelf(t *testing.T) {
	bb := blackboard.New(clock.New(), nil, 0)
	dev := &fakeDevice{id: "dev", openErr: errors.New("connection refused")}
	ot := opendevice.New(0, bb, dev, fakeSecureElement{}, neverDoer{}, "https://example.invalid/", nil)

	follow := ot.Execute(1000)
	tasks := follow.Tasks()
	if len(tasks) != 1 || tasks[0] != ot {
		t.Fatalf("expected the task to reschedule itself, got %v", tasks)
	}
	if ot.DueTime() != 1000+10000 {
		t.Fatalf("expected retry at %d, got %d", 1000+10000, ot.DueTime())
	}
	if len(bb.Devices.List()) != 0 {
		t.Fatal("expected no device to be registered after a failed open")
	}
}

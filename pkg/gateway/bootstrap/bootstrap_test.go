package bootstrap_test

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/bootstrap"
	"github.com/srcful-labs/energygateway/pkg/gateway/clock"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/opendevice"
)

type fakeSecureElement struct{}

func (fakeSecureElement) Acquire()                           {}
func (fakeSecureElement) Release()                           {}
func (fakeSecureElement) SerialNumber() string                { return "x" }
func (fakeSecureElement) Sign(message string) (string, error) { return "sig", nil }

type neverDoer struct{}

func (neverDoer) Do(req *http.Request) (*http.Response, error) { return nil, errors.New("not reached") }

func TestParse_SkipsBlankAndCommentLines(t *testing.T) {
	r := strings.NewReader("\n# a comment\n1000 device 10.0.0.5 502 1 solaredge\n\n")
	entries, err := bootstrap.Parse(r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.OffsetMs != 1000 || e.Host != "10.0.0.5" || e.Port != 502 || e.UnitID != 1 || e.Type != "solaredge" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestParse_RejectsMalformedLines(t *testing.T) {
	r := strings.NewReader("not a valid line\n")
	if _, err := bootstrap.Parse(r); err == nil {
		t.Fatal("expected an error for a malformed line")
	}
}

func TestBootstrap_GetTasksBuildsOpenDeviceTasksInFileOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.txt")
	content := "0 device 10.0.0.5 502 1 solaredge\n500 device 10.0.0.6 502 1 huawei\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	b := bootstrap.New(path)
	bb := blackboard.New(clock.New(), nil, 0)
	tasks, err := b.GetTasks(1_000_000, bb, fakeSecureElement{}, neverDoer{}, "https://example.invalid/", nil)
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	first, ok := tasks[0].(*opendevice.Task)
	if !ok {
		t.Fatalf("expected a *opendevice.Task, got %T", tasks[0])
	}
	if first.DueTime() != 1_000_000 {
		t.Fatalf("expected the first task due at start+0, got %d", first.DueTime())
	}
	second := tasks[1].(*opendevice.Task)
	if second.DueTime() != 1_000_500 {
		t.Fatalf("expected the second task due at start+500, got %d", second.DueTime())
	}
}

func TestBootstrap_MissingFileProducesNoTasks(t *testing.T) {
	b := bootstrap.New(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	bb := blackboard.New(clock.New(), nil, 0)
	tasks, err := b.GetTasks(0, bb, fakeSecureElement{}, neverDoer{}, "https://example.invalid/", nil)
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks for a missing file, got %d", len(tasks))
	}
}

func TestBootstrap_DeviceAddedAppendsAuditLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.txt")

	b := bootstrap.New(path)
	bb := blackboard.New(clock.New(), nil, 0)
	bb.Devices.AddListener(b)

	dev := newFakeDevice("dev-1", "solaredge")
	bb.Devices.Add(dev)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "device added: dev-1") {
		t.Fatalf("expected an audit line for the added device, got %q", string(data))
	}
}

type fakeDevice struct {
	id      string
	invType string
}

func newFakeDevice(id, invType string) *fakeDevice { return &fakeDevice{id: id, invType: invType} }

func (f *fakeDevice) Open() error      { return nil }
func (f *fakeDevice) Close() error     { return nil }
func (f *fakeDevice) IsOpen() bool     { return true }
func (f *fakeDevice) Terminate() error { return nil }
func (f *fakeDevice) IsTerminated() bool { return false }
func (f *fakeDevice) ID() string       { return f.id }
func (f *fakeDevice) Type() string     { return f.invType }
func (f *fakeDevice) ReadHarvestData() (device.Registers, error) { return nil, nil }
func (f *fakeDevice) WriteRegisters(start int, values []uint16) error { return nil }

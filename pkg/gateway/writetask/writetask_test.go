package writetask_test

import (
	"errors"
	"testing"

	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
	"github.com/srcful-labs/energygateway/pkg/gateway/writetask"
)

type fakeDevice struct {
	writes [][]uint16
	starts []int
	failOn int // index (0-based across calls) at which WriteRegisters errors, -1 for never
	calls  int
}

func (f *fakeDevice) Open() error    { return nil }
func (f *fakeDevice) Close() error   { return nil }
func (f *fakeDevice) IsOpen() bool   { return true }
func (f *fakeDevice) Terminate() error { return nil }
func (f *fakeDevice) IsTerminated() bool { return false }
func (f *fakeDevice) ID() string     { return "dev" }
func (f *fakeDevice) Type() string   { return "generic" }
func (f *fakeDevice) ReadHarvestData() (device.Registers, error) { return nil, nil }

func (f *fakeDevice) WriteRegisters(start int, values []uint16) error {
	defer func() { f.calls++ }()
	if f.failOn == f.calls {
		return errors.New("write failed")
	}
	f.starts = append(f.starts, start)
	f.writes = append(f.writes, values)
	return nil
}

func TestTask_EmptyCommandListReturnsNothing(t *testing.T) {
	dev := &fakeDevice{failOn: -1}
	tk := writetask.New(0, dev, nil)

	follow := tk.Execute(100)
	if !follow.IsEmpty() {
		t.Fatal("expected an empty command list to produce no follow-up")
	}
}

func TestTask_WritesRunImmediatelyThenCompletes(t *testing.T) {
	dev := &fakeDevice{failOn: -1}
	tk := writetask.New(0, dev, []writetask.Command{
		writetask.Write(10, []uint16{0, 1, 2}),
		writetask.Write(20, []uint16{5}),
	})

	follow := tk.Execute(100)
	if !follow.IsEmpty() {
		t.Fatal("expected the task to finish once all writes succeed")
	}
	if len(dev.writes) != 2 {
		t.Fatalf("expected 2 writes to reach the device, got %d", len(dev.writes))
	}
	if dev.starts[0] != 10 || dev.starts[1] != 20 {
		t.Fatalf("unexpected starting addresses: %v", dev.starts)
	}
}

func TestTask_PauseYieldsAndReschedulesSelfWithRemainder(t *testing.T) {
	dev := &fakeDevice{failOn: -1}
	tk := writetask.New(0, dev, []writetask.Command{
		writetask.Write(10, []uint16{1}),
		writetask.Pause(2000),
		writetask.Write(20, []uint16{2}),
	})

	follow := tk.Execute(100)
	tasks := follow.Tasks()
	if len(tasks) != 1 || tasks[0] != task.Task(tk) {
		t.Fatalf("expected the task to reschedule itself across the pause, got %v", tasks)
	}
	if tk.DueTime() != 100+2000 {
		t.Fatalf("expected due time %d, got %d", 100+2000, tk.DueTime())
	}
	if len(dev.writes) != 1 {
		t.Fatalf("expected only the write before the pause to have run, got %d", len(dev.writes))
	}

	// Second tick resumes after the pause and runs the remaining write.
	follow = tk.Execute(tk.DueTime())
	if !follow.IsEmpty() {
		t.Fatal("expected the task to finish after the remaining write runs")
	}
	if len(dev.writes) != 2 || dev.starts[1] != 20 {
		t.Fatalf("expected the post-pause write to reach the device, got %v", dev.starts)
	}
}

func TestTask_WriteFailureStopsTheWalk(t *testing.T) {
	dev := &fakeDevice{failOn: 0}
	tk := writetask.New(0, dev, []writetask.Command{
		writetask.Write(10, []uint16{1}),
		writetask.Write(20, []uint16{2}),
	})

	follow := tk.Execute(100)
	if !follow.IsEmpty() {
		t.Fatal("expected a write failure to end the task with no follow-up")
	}
	if len(dev.writes) != 0 {
		t.Fatalf("expected no successful writes to be recorded, got %d", len(dev.writes))
	}
}

func TestParseCommand_Write(t *testing.T) {
	cmd, err := writetask.ParseCommand(map[string]any{
		"type":            "write",
		"startingAddress": "10",
		"values":          []any{"0", "1", "2"},
	})
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}

	dev := &fakeDevice{failOn: -1}
	writetask.New(0, dev, []writetask.Command{cmd}).Execute(0)
	if len(dev.writes) != 1 || dev.starts[0] != 10 {
		t.Fatalf("expected the parsed command to write at address 10, got %v", dev.starts)
	}
	if len(dev.writes[0]) != 3 || dev.writes[0][2] != 2 {
		t.Fatalf("expected parsed values [0 1 2], got %v", dev.writes[0])
	}
}

func TestParseCommand_Pause(t *testing.T) {
	cmd, err := writetask.ParseCommand(map[string]any{
		"type":     "pause",
		"duration": "2000",
	})
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}

	dev := &fakeDevice{failOn: -1}
	tk := writetask.New(0, dev, []writetask.Command{cmd})
	follow := tk.Execute(100)
	if tasks := follow.Tasks(); len(tasks) != 1 {
		t.Fatalf("expected the pause to yield a self-reschedule, got %v", tasks)
	}
	if tk.DueTime() != 100+2000 {
		t.Fatalf("expected due time %d, got %d", 100+2000, tk.DueTime())
	}
}

func TestParseCommand_RejectsMissingOrUnknownType(t *testing.T) {
	if _, err := writetask.ParseCommand(map[string]any{}); !errors.Is(err, writetask.ErrUnknownCommandType) {
		t.Fatalf("expected ErrUnknownCommandType for a missing type, got %v", err)
	}
	if _, err := writetask.ParseCommand(map[string]any{"type": "not_a_real_command_type"}); !errors.Is(err, writetask.ErrUnknownCommandType) {
		t.Fatalf("expected ErrUnknownCommandType for an unrecognized type, got %v", err)
	}
}

func TestParseCommand_RejectsMissingFields(t *testing.T) {
	cases := []map[string]any{
		{"type": "write", "values": []any{"0"}},
		{"type": "write", "startingAddress": "10"},
		{"type": "pause"},
	}
	for _, c := range cases {
		if _, err := writetask.ParseCommand(c); !errors.Is(err, writetask.ErrMissingField) {
			t.Fatalf("expected ErrMissingField for %v, got %v", c, err)
		}
	}
}

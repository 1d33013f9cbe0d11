// Package writetask implements the command-write task: an ordered list of
// Modbus writes and pauses walked against one device, one scheduler tick
// at a time.
package writetask

import (
	"fmt"

	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
)

// Command is the tagged union a Task carries: either a Write or a Pause.
// Exactly one of the two constructors below should be used to build one.
type Command struct {
	write bool
	pause bool

	startingAddress int
	values           []uint16

	durationMs int64
}

// Write builds a command that performs a single Modbus write.
func Write(startingAddress int, values []uint16) Command {
	return Command{write: true, startingAddress: startingAddress, values: values}
}

// Pause builds a command that suspends the task for durationMs.
func Pause(durationMs int64) Command {
	return Command{pause: true, durationMs: durationMs}
}

// Task walks Commands against Device, one command per Execute call when the
// command is a Pause (to honour the pause without blocking the scheduler
// thread), or greedily through consecutive Writes within a single tick.
type Task struct {
	due      int64
	dev      device.Device
	commands []Command
}

// New constructs a command-write task due at due that will run commands
// against dev.
func New(due int64, dev device.Device, commands []Command) *Task {
	return &Task{due: due, dev: dev, commands: commands}
}

func (t *Task) DueTime() int64 { return t.due }

// Execute performs writes immediately, one per loop iteration, until either
// the list is exhausted (returns Nothing) or a Pause is reached — at which
// point the task reschedules itself at now+duration carrying whatever
// commands remain after the pause — a pause is realised by yielding back
// to the scheduler rather than blocking the loop with a sleep.
func (t *Task) Execute(now int64) task.FollowUp {
	for len(t.commands) > 0 {
		cmd := t.commands[0]
		t.commands = t.commands[1:]

		if cmd.pause {
			t.due = now + cmd.durationMs
			return task.One(t)
		}

		if err := t.dev.WriteRegisters(cmd.startingAddress, cmd.values); err != nil {
			return task.Nothing()
		}
	}
	return task.Nothing()
}

// ErrUnknownCommandType is returned by ParseCommand when a command's type
// field is missing or is neither "write" nor "pause".
var ErrUnknownCommandType = fmt.Errorf("writetask: unknown command type")

// ErrMissingField is returned by ParseCommand when a required field for the
// command's type is absent.
var ErrMissingField = fmt.Errorf("writetask: missing required field")

// ParseCommand decodes one decoded-JSON command object into a Command. The
// wire format carries numbers as either JSON numbers or numeric strings
// (the control surface's POST body is schema-less JSON), so both are
// accepted here.
func ParseCommand(raw map[string]any) (Command, error) {
	kind, _ := raw["type"].(string)
	switch kind {
	case "write":
		startRaw, ok := raw["startingAddress"]
		if !ok {
			return Command{}, fmt.Errorf("%w: write command requires startingAddress", ErrMissingField)
		}
		start, err := toInt(startRaw)
		if err != nil {
			return Command{}, fmt.Errorf("%w: startingAddress: %v", ErrMissingField, err)
		}

		valuesRaw, ok := raw["values"]
		if !ok {
			return Command{}, fmt.Errorf("%w: write command requires values", ErrMissingField)
		}
		list, ok := valuesRaw.([]any)
		if !ok {
			return Command{}, fmt.Errorf("%w: values must be a list", ErrMissingField)
		}
		values := make([]uint16, len(list))
		for i, v := range list {
			n, err := toInt(v)
			if err != nil {
				return Command{}, fmt.Errorf("%w: values[%d]: %v", ErrMissingField, i, err)
			}
			values[i] = uint16(n)
		}
		return Write(start, values), nil

	case "pause":
		durationRaw, ok := raw["duration"]
		if !ok {
			return Command{}, fmt.Errorf("%w: pause command requires duration", ErrMissingField)
		}
		duration, err := toInt(durationRaw)
		if err != nil {
			return Command{}, fmt.Errorf("%w: duration: %v", ErrMissingField, err)
		}
		return Pause(int64(duration)), nil

	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommandType, kind)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		var out int
		if _, err := fmt.Sscanf(n, "%d", &out); err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

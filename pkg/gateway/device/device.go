// Package device defines the Modbus device-session contract the harvest,
// open-device, and command-write tasks depend on, and provides a concrete
// Modbus TCP implementation of it.
//
// The tasks that hold a Device depend only on the interface below, never on
// a concrete transport. ModbusTCP exists so the daemon is a runnable whole,
// but none of its wire-level complexity is visible to the scheduler or to
// the tasks that hold a Device.
package device

import "fmt"

// Registers is a register-address → value snapshot, the unit the harvest
// task accumulates into its batch.
type Registers map[string]int

// Device is the session contract every task in this gateway depends on.
// Implementations must make Close idempotent and safe to call concurrently
// with a harvest task's own tick.
type Device interface {
	// Open establishes (or re-establishes) the underlying connection.
	Open() error

	// Close releases the underlying connection. Idempotent.
	Close() error

	// IsOpen reports whether the session currently has a live connection.
	IsOpen() bool

	// Terminate marks the device permanently dead — a superseded session
	// never reopens. Terminate implies Close.
	Terminate() error

	// IsTerminated reports whether Terminate has been called.
	IsTerminated() bool

	// ID is the stable identity used by the device registry. Device
	// identities in the registry are unique.
	ID() string

	// Type identifies the inverter family (e.g. "solaredge", "huawei",
	// "generic") — carried in every uploaded batch.
	Type() string

	// ReadHarvestData polls the device's configured register map and
	// returns one register snapshot. A non-nil error is treated as
	// DeviceUnreachable by the harvest task.
	ReadHarvestData() (Registers, error)

	// WriteRegisters performs a single Modbus write of values starting at
	// startingAddress. Used by the command-write task.
	WriteRegisters(startingAddress int, values []uint16) error
}

// ErrNotOpen is returned by WriteRegisters/ReadHarvestData when called
// against a session that has no live connection.
var ErrNotOpen = fmt.Errorf("device: not open")

// ErrTerminated is returned by Open when called against a terminated
// session.
var ErrTerminated = fmt.Errorf("device: terminated")

// Package bootstrap parses the declarative startup file: one device-open
// entry per line, each with an offset from start_time, and plays them back
// into an ordered list of OpenDeviceTasks. It also registers as a
// blackboard.DeviceListener so that future device sessions get appended
// back into the same file as human-readable '#' audit lines. Parse skips
// those lines, so a restart replays only the file's device entries.
//
// The line grammar below is this package's own invention, documented
// rather than left implicit, since no prior specification of it exists.
package bootstrap

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/opendevice"
	"github.com/srcful-labs/energygateway/pkg/gateway/secureelement"
	"github.com/srcful-labs/energygateway/pkg/gateway/task"
	"github.com/srcful-labs/energygateway/pkg/gateway/transport"
)

// Entry is one parsed bootstrap line: open a Modbus TCP device at
// host:port/unitID (of the given inverter type) offsetMs after start_time.
type Entry struct {
	OffsetMs int64
	Host     string
	Port     int
	UnitID   byte
	Type     string
}

// Parse reads a bootstrap file. Each non-blank, non-comment ('#') line has
// the form:
//
//	<offset_ms> device <host> <port> <unit_id> <type>
//
// Blank lines and lines starting with '#' (including the human-readable
// audit lines Bootstrap itself appends) are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 6 || fields[1] != "device" {
			return nil, fmt.Errorf("bootstrap: line %d: malformed entry %q", lineNo, line)
		}

		offset, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: line %d: bad offset: %w", lineNo, err)
		}
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("bootstrap: line %d: bad port: %w", lineNo, err)
		}
		unitID, err := strconv.ParseUint(fields[4], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: line %d: bad unit id: %w", lineNo, err)
		}

		entries = append(entries, Entry{
			OffsetMs: offset,
			Host:     fields[2],
			Port:     port,
			UnitID:   byte(unitID),
			Type:     fields[5],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return entries, nil
}

// Bootstrap owns the bootstrap file: it produces the initial task list on
// startup and appends a '#' audit line for every device the registry gains
// or loses afterwards. The audit lines are a record only; a restart does
// not replay them.
type Bootstrap struct {
	mu           sync.Mutex
	path         string
	profilesPath string
}

// New constructs a Bootstrap backed by path. An empty path is valid — it
// disables both parsing (GetTasks returns no entries) and appending.
func New(path string) *Bootstrap {
	return &Bootstrap{path: path}
}

// NewWithProfiles is New plus an optional device-defaults override file:
// a YAML document mapping inverter type to its scan-register ranges,
// loaded once by GetTasks before any device is constructed so an operator
// can add or correct an inverter family without a rebuild.
func NewWithProfiles(path, profilesPath string) *Bootstrap {
	return &Bootstrap{path: path, profilesPath: profilesPath}
}

// GetTasks parses the bootstrap file (if any) and returns one
// opendevice.Task per entry, due at start+entry.OffsetMs, in file order.
// A missing file is not an error — a fresh gateway simply starts with no
// initial devices. Each constructed device gets a uuid-generated stable
// session identity rather than a host:port-derived one, since the
// underlying network location is not guaranteed stable across DHCP leases.
func (b *Bootstrap) GetTasks(start int64, bb *blackboard.BlackBoard, se secureelement.SecureElement, client transport.Doer, uploadURL string, logger *slog.Logger) ([]task.Task, error) {
	if b.profilesPath != "" {
		if err := device.LoadProfilesFile(b.profilesPath); err != nil {
			return nil, err
		}
	}

	if b.path == "" {
		return nil, nil
	}

	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, err
	}

	tasks := make([]task.Task, 0, len(entries))
	for _, e := range entries {
		id := uuid.NewString()
		dev := device.NewModbusTCP(id, e.Host, e.Port, e.UnitID, e.Type)
		if logger != nil {
			logger.Info("bootstrap: seeding device task",
				"correlation_id", uuid.NewString(),
				"device_id", id,
				"host", e.Host,
				"port", e.Port,
			)
		}
		tasks = append(tasks, opendevice.New(start+e.OffsetMs, bb, dev, se, client, uploadURL, logger))
	}
	return tasks, nil
}

// DeviceAdded implements blackboard.DeviceListener by appending a
// human-readable audit line to the bootstrap file.
func (b *Bootstrap) DeviceAdded(d device.Device) {
	b.appendLine(fmt.Sprintf("# device added: %s (%s)", d.ID(), d.Type()))
}

// DeviceRemoved implements blackboard.DeviceListener.
func (b *Bootstrap) DeviceRemoved(d device.Device) {
	b.appendLine(fmt.Sprintf("# device removed: %s (%s)", d.ID(), d.Type()))
}

func (b *Bootstrap) appendLine(line string) {
	if b.path == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	fmt.Fprintln(f, line)
}

var _ blackboard.DeviceListener = (*Bootstrap)(nil)

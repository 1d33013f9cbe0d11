package deadletter_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/srcful-labs/energygateway/pkg/gateway/deadletter"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
)

func TestRecord_NoopWithoutConfigure(t *testing.T) {
	// Nothing configured in this test binary yet (or Close left it unset) —
	// Record must not panic.
	deadletter.Record(1000, "dev-1", "acme_solar", map[int64]device.Registers{
		1000: {"40001": 1},
	})
}

func TestConfigureRecordClose_WritesOneJSONLinePerBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadletter.jsonl")

	if err := deadletter.Configure(path, 0, 0, nil); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer deadletter.Close()

	batch := map[int64]device.Registers{
		1000: {"40001": 42},
	}
	deadletter.Record(1000, "dev-1", "acme_solar", batch)
	deadletter.Record(2000, "dev-2", "acme_solar", batch)

	if err := deadletter.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first["device_id"] != "dev-1" {
		t.Errorf("device_id = %v, want dev-1", first["device_id"])
	}
	if first["inv_type"] != "acme_solar" {
		t.Errorf("inv_type = %v, want acme_solar", first["inv_type"])
	}
}

func TestConfigure_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "deadletter.jsonl")

	if err := deadletter.Configure(path, 0, 0, nil); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer deadletter.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist at %s: %v", path, err)
	}
}

func TestRecord_RotatesOnceMaxBytesExceeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadletter.jsonl")

	// A tiny limit, smaller than any one record, forces a rotation before
	// every record is written.
	if err := deadletter.Configure(path, 40, 1, nil); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer deadletter.Close()

	batch := map[int64]device.Registers{1000: {"40001": 1}}
	deadletter.Record(1000, "dev-1", "acme_solar", batch)
	deadletter.Record(2000, "dev-2", "acme_solar", batch)
	deadletter.Record(3000, "dev-3", "acme_solar", batch)

	if err := deadletter.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected a rotated backup at %s.1: %v", path, err)
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadletter.jsonl")
	if err := deadletter.Configure(path, 0, 0, nil); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := deadletter.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := deadletter.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

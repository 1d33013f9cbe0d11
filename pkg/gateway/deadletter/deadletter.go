// Package deadletter is the local, file-based resilience net for harvest
// batches that the backend permanently rejects. A non-200 response drops
// the batch from the upload queue whether the rejection is a genuinely
// malformed payload or a transient backend-side bug, and without a local
// copy the batch is otherwise lost the moment it's dropped. Configuring a
// dead-letter path turns "drop" into "drop from the upload queue, but
// keep a local, rotated record of it."
package deadletter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/srcful-labs/energygateway/pkg/gateway/device"
)

// record is one dropped-batch entry, JSON-encoded one per line.
type record struct {
	DroppedAtMs int64                     `json:"dropped_at_ms"`
	DeviceID    string                    `json:"device_id"`
	InvType     string                    `json:"inv_type"`
	Batch       map[int64]device.Registers `json:"batch"`
}

var (
	mu     sync.Mutex
	file   *rotatingFile
	logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
)

// Configure opens (or creates) path as the active dead-letter destination.
// Rotation triggers once the active file exceeds maxBytes (0 disables
// rotation); at most maxBackups rotated files are kept (0 keeps them
// all). Call Close when the gateway shuts down.
func Configure(path string, maxBytes int64, maxBackups int, log *slog.Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if log != nil {
		logger = log
	}

	rf, err := newRotatingFile(path, maxBytes, maxBackups, logger)
	if err != nil {
		return fmt.Errorf("deadletter: %w", err)
	}
	file = rf
	return nil
}

// Record appends one dropped batch to the configured dead-letter file. It
// is a no-op if Configure was never called — most gateways run without a
// dead-letter path, and Record must stay safe to call unconditionally
// from HarvestTransport's drop path regardless.
func Record(nowMs int64, deviceID, invType string, batch map[int64]device.Registers) {
	mu.Lock()
	f := file
	mu.Unlock()
	if f == nil {
		return
	}

	line, err := json.Marshal(record{DroppedAtMs: nowMs, DeviceID: deviceID, InvType: invType, Batch: batch})
	if err != nil {
		logger.Error("deadletter: marshal failed", "device", deviceID, "error", err.Error())
		return
	}
	if err := f.writeLine(line); err != nil {
		logger.Error("deadletter: write failed", "device", deviceID, "error", err.Error())
	}
}

// Close releases the configured dead-letter file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

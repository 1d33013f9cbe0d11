// Package wireformat serialises the signed JSON payload every remote call
// in this gateway posts to the backend (harvest upload, settings
// pull/push, gateway-name pull).
package wireformat

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Formatter serialises a signed call payload into a byte slice.
// Declared separately from JSONFormatter so an alternative wire format
// could be substituted without touching transport.Call.
type Formatter interface {
	Format(payload map[string]any) ([]byte, error)
}

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true. Use
	// false (default) in production to minimise bytes on the wire.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint is true.
	// Defaults to two spaces when empty.
	Indent string
}

// JSONFormatter implements Formatter using encoding/json. It is safe for
// concurrent use; all fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted so the formatter never panics on a nil receiver.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises payload to JSON. It returns a non-nil error when
// payload is nil or when json.Marshal itself fails — every payload this
// gateway builds is a
// plain map of marshalable values, so that should only happen if a
// caller's BuildPayload smuggles in something json can't encode (a
// channel, a func, NaN).
func (f *JSONFormatter) Format(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("wireformat: payload must not be nil")
	}

	var (
		data []byte
		err  error
	)
	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(payload, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		f.logger.Error("wireformat: marshal failed", "error", err.Error())
		return nil, fmt.Errorf("wireformat: marshal: %w", err)
	}

	f.logger.Debug("wireformat: formatted payload", "bytes", len(data))
	return data, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Command gatewayd is the main energy gateway binary.
//
// It starts the embedded HTTP control surface on the given host/port,
// optionally opens one device immediately, optionally replays a bootstrap
// file of further devices, and runs until interrupted (SIGINT/SIGTERM).
//
// Usage:
//
//	gatewayd [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/srcful-labs/energygateway/pkg/gateway/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatewayd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		host   string
		port   int
		logFmt string

		uploadURL         string
		bootstrapPath     string
		profilesPath      string
		settingsCachePath string

		initAddress string
		initPort    int
		initType    string
		initUnit    int

		httpTimeoutSec int

		deadLetterPath       string
		deadLetterMaxBytes   int64
		deadLetterMaxBackups int
	)

	flag.StringVar(&host, "host", "0.0.0.0", "Host the embedded HTTP control surface binds")
	flag.IntVar(&port, "port", 8080, "Port the embedded HTTP control surface binds")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")

	flag.StringVar(&uploadURL, "upload.url", "", "Backend URL every signed POST (harvest, settings, name) targets")
	flag.StringVar(&bootstrapPath, "bootstrap.file", "", "Optional bootstrap file path recording device-open replay entries")
	flag.StringVar(&profilesPath, "device.profiles", "", "Optional YAML device-defaults override file")
	flag.StringVar(&settingsCachePath, "settings.cache", "", "Optional path to persist the runtime settings document across restarts")

	flag.StringVar(&initAddress, "device.address", "", "Optional initial device IP/host to open at startup")
	flag.IntVar(&initPort, "device.port", 502, "Initial device's Modbus TCP port")
	flag.StringVar(&initType, "device.type", "generic", "Initial device's inverter family")
	flag.IntVar(&initUnit, "device.unit", 1, "Initial device's Modbus unit id")

	flag.IntVar(&httpTimeoutSec, "http.timeout", 10, "Timeout in seconds for every outbound signed POST")

	flag.StringVar(&deadLetterPath, "deadletter.file", "", "Optional path to record harvest batches the backend permanently rejects")
	flag.Int64Var(&deadLetterMaxBytes, "deadletter.max-bytes", 10*1024*1024, "Rotate the dead-letter file once it exceeds this size (0 disables rotation)")
	flag.IntVar(&deadLetterMaxBackups, "deadletter.max-backups", 5, "Rotated dead-letter files to keep (0 keeps them all)")

	flag.Parse()

	logger, err := buildLogger(logFmt)
	if err != nil {
		return err
	}

	cfg := app.Config{
		RestAddr:          net.JoinHostPort(host, strconv.Itoa(port)),
		UploadURL:         uploadURL,
		BootstrapPath:     bootstrapPath,
		ProfilesPath:      profilesPath,
		SettingsCachePath: settingsCachePath,
		HTTPTimeout:       time.Duration(httpTimeoutSec) * time.Second,

		DeadLetterPath:       deadLetterPath,
		DeadLetterMaxBytes:   deadLetterMaxBytes,
		DeadLetterMaxBackups: deadLetterMaxBackups,
	}
	if initAddress != "" {
		cfg.Initial = &app.InitialDevice{
			Host:   initAddress,
			Port:   initPort,
			UnitID: byte(initUnit),
			Type:   initType,
		}
	}

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("gatewayd: running — press Ctrl-C to stop")
	<-ctx.Done()
	logger.Info("gatewayd: received shutdown signal")

	application.Stop()
	return nil
}

func buildLogger(format string) (*slog.Logger, error) {
	var handler slog.Handler
	switch format {
	case "json", "":
		handler = slog.NewJSONHandler(os.Stderr, nil)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, nil)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}
	return slog.New(handler), nil
}

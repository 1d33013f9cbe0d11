// Package app wires the gateway's components together and manages their
// lifecycle: construct the blackboard, the scheduler, and the initial
// task set, then run until interrupted.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/srcful-labs/energygateway/pkg/gateway/blackboard"
	"github.com/srcful-labs/energygateway/pkg/gateway/bootstrap"
	"github.com/srcful-labs/energygateway/pkg/gateway/clock"
	"github.com/srcful-labs/energygateway/pkg/gateway/configtask"
	"github.com/srcful-labs/energygateway/pkg/gateway/deadletter"
	"github.com/srcful-labs/energygateway/pkg/gateway/device"
	"github.com/srcful-labs/energygateway/pkg/gateway/httpapi"
	"github.com/srcful-labs/energygateway/pkg/gateway/opendevice"
	"github.com/srcful-labs/energygateway/pkg/gateway/scheduler"
	"github.com/srcful-labs/energygateway/pkg/gateway/secureelement"
	"github.com/srcful-labs/energygateway/pkg/gateway/settingscache"
	"github.com/srcful-labs/energygateway/pkg/gateway/webdispatch"
)

// InitialDevice describes the single device the CLI may ask to open
// immediately at startup, before any bootstrap file is consulted.
type InitialDevice struct {
	Host   string
	Port   int
	UnitID byte
	Type   string
}

// Config holds everything needed to build and run one gateway instance.
// Zero-value fields fall back to documented defaults, mirroring the
// teacher's Config.withDefaults pattern.
type Config struct {
	// RestAddr is the host:port the embedded HTTP control surface binds.
	RestAddr string

	// UploadURL is the backend endpoint every signed POST (harvest
	// upload, settings pull/push, name pull) targets.
	UploadURL string

	// BootstrapPath is the optional bootstrap file path. Empty disables
	// both initial-device replay and the audit-append listener.
	BootstrapPath string

	// ProfilesPath is the optional device-defaults override file
	// (YAML, device.LoadProfiles' shape) consulted once at startup.
	ProfilesPath string

	// SettingsCachePath is where the runtime settings document is
	// persisted across restarts. Empty disables the cache entirely.
	SettingsCachePath string

	// Initial, if non-nil, is opened immediately at startup in addition
	// to whatever the bootstrap file replays.
	Initial *InitialDevice

	// HTTPTimeout bounds every outbound signed POST.
	HTTPTimeout time.Duration

	// DispatchRateLimit caps how many queued HTTP-originated tasks the
	// web-dispatch task submits per tick (webdispatch.MaxDrainPerTick is
	// the hard ceiling; this can only tighten it).
	DispatchRateLimit rate.Limit
	DispatchBurst     int

	// DeadLetterPath, if non-empty, turns on local recording of harvest
	// batches the backend permanently rejects. DeadLetterMaxBytes rotates
	// the file once it grows past that size (0 disables rotation);
	// DeadLetterMaxBackups bounds how many rotated files are kept (0
	// keeps them all).
	DeadLetterPath       string
	DeadLetterMaxBytes   int64
	DeadLetterMaxBackups int
}

func (c *Config) withDefaults() {
	if c.RestAddr == "" {
		c.RestAddr = "0.0.0.0:8080"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.DispatchRateLimit <= 0 {
		c.DispatchRateLimit = rate.Limit(10)
	}
	if c.DispatchBurst <= 0 {
		c.DispatchBurst = webdispatch.MaxDrainPerTick
	}
}

// App owns every long-lived component of one running gateway: the
// scheduler goroutine, the embedded HTTP server, and the blackboard they
// both act through.
type App struct {
	cfg    Config
	logger *slog.Logger

	clk   *clock.Clock
	sched *scheduler.Scheduler
	bb    *blackboard.BlackBoard
	se    secureelement.SecureElement
	boot  *bootstrap.Bootstrap

	httpServer *http.Server
	api        *httpapi.Server
}

// New constructs an App. It does not start anything — call Start.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	cfg.withDefaults()
	return &App{cfg: cfg, logger: logger}
}

// BlackBoard returns the gateway's shared state, constructed by Start.
// It is nil until Start has run.
func (a *App) BlackBoard() *blackboard.BlackBoard {
	return a.bb
}

// Start builds every component, seeds the initial task set, and launches
// the scheduler and HTTP server goroutines. It returns as soon as both
// goroutines are launched, without waiting for the server to accept
// connections; it does not block.
func (a *App) Start(ctx context.Context) error {
	a.clk = clock.New()
	a.sched = scheduler.New(a.clk, a.logger)

	restPort, err := portOf(a.cfg.RestAddr)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.bb = blackboard.New(a.clk, a.sched, restPort)

	se, err := secureelement.NewSoftware()
	if err != nil {
		return fmt.Errorf("app: secure element: %w", err)
	}
	a.se = se

	httpClient := &http.Client{Timeout: a.cfg.HTTPTimeout}

	if a.cfg.DeadLetterPath != "" {
		if err := deadletter.Configure(a.cfg.DeadLetterPath, a.cfg.DeadLetterMaxBytes, a.cfg.DeadLetterMaxBackups, a.logger); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	if a.cfg.SettingsCachePath != "" {
		if err := settingscache.Load(a.cfg.SettingsCachePath, a.bb.Settings); err != nil {
			a.logger.Warn("app: settings cache load failed — starting from empty settings",
				"path", a.cfg.SettingsCachePath, "error", err.Error())
		}
	}

	if a.cfg.BootstrapPath != "" || a.cfg.ProfilesPath != "" {
		a.boot = bootstrap.NewWithProfiles(a.cfg.BootstrapPath, a.cfg.ProfilesPath)
		a.bb.Devices.AddListener(a.boot)
	}

	start := a.bb.StartTime()

	if a.cfg.Initial != nil {
		id := fmt.Sprintf("initial-%d", start)
		dev := device.NewModbusTCP(id, a.cfg.Initial.Host, a.cfg.Initial.Port, a.cfg.Initial.UnitID, a.cfg.Initial.Type)
		a.sched.Submit(opendevice.New(start+100, a.bb, dev, a.se, httpClient, a.cfg.UploadURL, a.logger))
	}

	if a.boot != nil {
		tasks, err := a.boot.GetTasks(start+500, a.bb, a.se, httpClient, a.cfg.UploadURL, a.logger)
		if err != nil {
			return fmt.Errorf("app: bootstrap: %w", err)
		}
		for _, t := range tasks {
			a.sched.Submit(t)
		}
	}

	queue := httpapi.NewQueue()
	limiter := rate.NewLimiter(a.cfg.DispatchRateLimit, a.cfg.DispatchBurst)
	a.sched.Submit(webdispatch.New(start+1000, a.bb, queue, limiter))

	a.sched.Submit(configtask.NewGetSettingsTask(start+2000, a.bb, a.se, httpClient, a.cfg.UploadURL))
	a.sched.Submit(configtask.NewGetNameTask(start+2000, a.bb, a.se, httpClient, a.cfg.UploadURL))

	a.api = httpapi.New(a.bb, queue, a.se, httpClient, a.cfg.UploadURL, a.logger)
	a.httpServer = &http.Server{Addr: a.cfg.RestAddr, Handler: a.api.Handler()}

	go a.sched.Run(ctx)

	go func() {
		a.logger.Info("app: http control surface listening", "addr", a.cfg.RestAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("app: http server stopped", "error", err.Error())
		}
	}()

	a.logger.Info("app: started",
		"rest_addr", a.cfg.RestAddr,
		"bootstrap_path", a.cfg.BootstrapPath,
		"initial_device", a.cfg.Initial != nil,
	)
	return nil
}

// Stop gracefully shuts down the HTTP server, terminates every registered
// device, waits for the scheduler goroutine to return (the caller must
// already have cancelled Start's context), and persists the settings
// cache one last time.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("app: http server shutdown error", "error", err.Error())
		}
	}

	if a.sched != nil {
		a.sched.Stop()
	}

	if a.bb != nil {
		for _, d := range a.bb.Devices.List() {
			if err := d.Terminate(); err != nil {
				a.logger.Error("app: device terminate error", "device", d.ID(), "error", err.Error())
			}
		}
	}

	if a.cfg.SettingsCachePath != "" && a.bb != nil {
		if err := settingscache.Save(a.cfg.SettingsCachePath, a.bb.Settings); err != nil {
			a.logger.Error("app: settings cache save failed", "error", err.Error())
		}
	}

	if a.cfg.DeadLetterPath != "" {
		if err := deadletter.Close(); err != nil {
			a.logger.Error("app: dead-letter file close error", "error", err.Error())
		}
	}

	a.logger.Info("app: shutdown complete")
}

func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("split %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("bad port in %q: %w", addr, err)
	}
	return port, nil
}

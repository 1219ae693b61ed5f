package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/wsensor/internal/adapters/control"
	"github.com/lcalzada-xor/wsensor/internal/adapters/pcapfile"
	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/capture"
	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/driver"
	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/hopping"
	"github.com/lcalzada-xor/wsensor/internal/adapters/storage"
	"github.com/lcalzada-xor/wsensor/internal/adapters/web"
	"github.com/lcalzada-xor/wsensor/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/wsensor/internal/config"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
	"github.com/lcalzada-xor/wsensor/internal/core/services/collator"
	grpcserver "github.com/lcalzada-xor/wsensor/internal/core/services/grpc"
	"github.com/lcalzada-xor/wsensor/internal/core/services/persistence"
	"github.com/lcalzada-xor/wsensor/internal/geo"
	"github.com/lcalzada-xor/wsensor/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

const (
	frameQueue  = 10000
	sinkTimeout = 10 * time.Second
)

// ErrPrimaryRadio is returned when the primary radio cannot be set up.
var ErrPrimaryRadio = errors.New("primary radio unavailable")

// Option customizes how the application reaches the hardware.
type Option func(*Application)

// WithRadioController replaces the iw/ip based controller.
func WithRadioController(ctl ports.RadioController) Option {
	return func(a *Application) { a.ctl = ctl }
}

// WithSourceOpener replaces the libpcap capture socket.
func WithSourceOpener(open capture.SourceOpener) Option {
	return func(a *Application) { a.open = open }
}

// WithLogger sets the root logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// Application wires the radios, the decode pipeline and the collaborator
// surfaces of one sensor run.
type Application struct {
	Config  *config.Config
	Session domain.Session

	Sink               *storage.GormAdapter
	PersistenceManager *persistence.PersistenceManager
	Capture            *pcapfile.RollingWriter
	Collator           *collator.Collator
	Control            *control.Server
	Events             *websocket.WSManager
	WebServer          *web.Server
	Health             *grpcserver.HealthServer
	Reporter           *geo.Reporter
	Radios             []*capture.Radio

	ctl    ports.RadioController
	open   capture.SourceOpener
	logger *slog.Logger
}

// New creates the application and brings the radios up. A failure leaves
// nothing behind.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	app := &Application{Config: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = slog.Default()
	}
	if app.ctl == nil {
		app.ctl = driver.NewLinux(app.logger)
	}
	if app.open == nil {
		app.open = capture.OpenPcapSource
	}

	if err := app.bootstrap(); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	if err := app.initStorage(); err != nil {
		return err
	}
	if err := app.initPipeline(); err != nil {
		return err
	}
	app.initServers()
	return app.initRadios()
}

func (app *Application) initStorage() error {
	dsn := app.Config.DSN
	if !strings.Contains(dsn, "://") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return fmt.Errorf("failed to create DB directory: %w", err)
		}
	}
	sink, err := storage.Open(dsn, app.logger)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	app.Sink = sink

	hostname, _ := os.Hostname()
	app.Session = domain.Session{
		ID:       uuid.NewString(),
		Hostname: hostname,
		Kernel:   kernelRelease(),
		Start:    time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := sink.SensorUp(ctx, app.Session); err != nil {
		return fmt.Errorf("sensor up: %w", err)
	}
	app.logger.Info("Session started", "session", app.Session.ID, "driver", sink.Driver())
	return nil
}

func kernelRelease() string {
	b, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return runtime.GOOS
	}
	return strings.TrimSpace(string(b))
}

func (app *Application) initPipeline() error {
	cfg := app.Config

	app.PersistenceManager = persistence.NewPersistenceManager(app.Sink, frameQueue, app.logger)
	app.PersistenceManager.SetEnabled(cfg.Persistence)

	var captureWriter ports.CaptureWriter
	if cfg.PcapDir != "" {
		w, err := pcapfile.NewRollingWriter(cfg.PcapDir, "wsensor", int64(cfg.PcapRollMB)<<20, app.logger)
		if err != nil {
			return fmt.Errorf("capture files: %w", err)
		}
		app.Capture = w
		captureWriter = w
	}

	var responder ports.CommandResponder
	if cfg.ControlSocket != "" {
		app.Control = control.NewServer(cfg.ControlSocket, control.DefaultTimeout, app.logger)
		responder = app.Control
	}

	app.Events = websocket.NewWSManager(app.logger)

	c, err := collator.New(collator.Config{
		MinWorkers: cfg.MinWorkers,
		MaxWorkers: cfg.MaxWorkers,
		Threshold:  cfg.Threshold,
		QueueSize:  cfg.QueueSize,
		Session:    app.Session.ID,
		Sink:       app.Sink,
		Frames:     app.PersistenceManager,
		Capture:    captureWriter,
		Responder:  responder,
		Events:     app.Events,
		Logger:     app.logger,
	})
	if err != nil {
		return fmt.Errorf("collator: %w", err)
	}
	app.Collator = c
	return nil
}

func (app *Application) initServers() {
	cfg := app.Config

	if cfg.Addr != "" {
		app.WebServer = web.NewServer(cfg.Addr, app.Collator, app.PersistenceManager, app.Events, app.logger)
		app.WebServer.TokenHash = []byte(cfg.TokenHash)
		app.WebServer.RateLimit = cfg.RateLimit
	}
	if cfg.GRPCPort > 0 {
		app.Health = grpcserver.NewHealthServer(app.logger)
	}
	if cfg.Latitude != 0 || cfg.Longitude != 0 {
		provider := geo.NewStaticProvider(cfg.Latitude, cfg.Longitude, cfg.Altitude)
		app.Reporter = geo.NewReporter(provider, app.Sink, app.Session.ID, geo.DefaultInterval, app.logger)
	}
}

func (app *Application) radioOptions(role domain.Role, iface string) capture.Options {
	cfg := app.Config
	opts := capture.Options{
		Role:     role,
		Iface:    iface,
		ScanList: cfg.ScanList,
		Record:   cfg.Record && app.Capture != nil,
		Slots:    cfg.Slots,
		Scanner: hopping.Config{
			Dwell: cfg.Dwell,
			Epoch: cfg.Epoch,
			Params: hopping.DwellParams{
				Min:  cfg.MinDwell,
				Step: cfg.DwellStep,
				High: cfg.High,
				Low:  cfg.Low,
			},
			Initial: cfg.State(),
		},
	}
	if role == domain.RolePrimary {
		opts.RegDomain = cfg.RegDomain
		opts.SpoofMAC = cfg.SpoofMAC
	}
	return opts
}

// initRadios sets up the primary radio, which must succeed, and the optional
// secondary, whose failure is only logged.
func (app *Application) initRadios() error {
	pri, err := capture.Setup(app.ctl, app.radioOptions(domain.RolePrimary, app.Config.Primary), app.open, app.logger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrimaryRadio, err)
	}
	app.Radios = append(app.Radios, pri)

	if app.Config.Secondary == "" {
		return nil
	}
	sec, err := capture.Setup(app.ctl, app.radioOptions(domain.RoleSecondary, app.Config.Secondary), app.open, app.logger)
	if err != nil {
		app.logger.Warn("Secondary radio unavailable, continuing with the primary only",
			"iface", app.Config.Secondary, "error", err)
		return nil
	}
	app.Radios = append(app.Radios, sec)
	return nil
}

// Run starts every component and blocks until ctx is cancelled or a fatal
// error occurs. Shutdown stops the radios first, then drains the decode
// pool, then flushes the frame writer, and finally closes the session.
func (app *Application) Run(ctx context.Context) error {
	app.logger.Info("Starting sensor components", "version", Version, "radios", len(app.Radios))
	defer app.cleanup()

	// the pipeline outlives ctx so that it can drain what the radios sent
	persistCtx, stopPersistence := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPersistence()
	app.PersistenceManager.Start(persistCtx)

	collatorCtx, stopCollator := context.WithCancel(context.WithoutCancel(ctx))
	defer stopCollator()
	collatorDone := make(chan error, 1)
	go func() { collatorDone <- app.Collator.Run(collatorCtx) }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errChan := make(chan error, 8)
	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	if app.WebServer != nil {
		goRun("web server", app.WebServer.Run)
	} else {
		app.Events.Start(runCtx)
	}
	if app.Control != nil {
		goRun("control server", app.Control.Run)
	}
	if app.Health != nil {
		goRun("grpc server", func(ctx context.Context) error {
			return app.Health.Serve(ctx, fmt.Sprintf(":%d", app.Config.GRPCPort))
		})
		goRun("radio health", func(ctx context.Context) error {
			app.Health.Track(ctx, app.Collator, grpcserver.DefaultPoll)
			return nil
		})
	}
	if app.Reporter != nil {
		goRun("location", app.Reporter.Run)
	}

	for _, r := range app.Radios {
		app.startRadio(runCtx, &wg, r)
	}

	app.logger.Info("Sensor ready. Press Ctrl+C to terminate.", "session", app.Session.ID)

	var runErr error
	collatorStopped := false
	select {
	case <-ctx.Done():
		app.logger.Info("Termination signal received")
	case runErr = <-errChan:
	case runErr = <-collatorDone:
		collatorStopped = true
		if runErr == nil {
			runErr = errors.New("collator stopped unexpectedly")
		}
	case <-app.PersistenceManager.Done():
		runErr = app.PersistenceManager.Err()
	}
	if runErr != nil {
		app.logger.Error("Sensor stopping on error", "error", runErr)
	}

	cancel()
	wg.Wait()

	if !collatorStopped {
		stopCollator()
		if err := <-collatorDone; err != nil && runErr == nil {
			runErr = err
		}
	}
	stopPersistence()
	<-app.PersistenceManager.Done()
	if err := app.PersistenceManager.Err(); err != nil && runErr == nil {
		runErr = err
	}
	app.logger.Info("Pipeline drained",
		"frames_written", app.PersistenceManager.Written(),
		"frames_dropped", app.PersistenceManager.Dropped())
	return runErr
}

func (app *Application) startRadio(ctx context.Context, wg *sync.WaitGroup, r *capture.Radio) {
	role := r.Record.Role
	if app.Control != nil {
		app.Control.Attach(role, r.Record.NIC, r.Scanner)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if app.Control != nil {
			defer app.Control.Detach(role)
		}
		if err := r.Run(ctx, app.Collator.Notices()); err != nil {
			app.logger.Error("Radio stopped", "radio", string(role), "iface", r.Record.NIC, "error", err)
		}
	}()
}

// cleanup restores the interfaces and closes the session. It is safe on a
// partially bootstrapped application.
func (app *Application) cleanup() {
	app.logger.Info("Cleaning up resources...")
	for _, r := range app.Radios {
		r.Teardown()
	}
	app.Radios = nil

	if app.Capture != nil {
		if err := app.Capture.Close(); err != nil {
			app.logger.Warn("Failed to close capture file", "error", err)
		}
		app.Capture = nil
	}

	if app.Sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := app.Sink.SensorDown(ctx, app.Session.ID, time.Now()); err != nil {
			app.logger.Warn("Failed to close session", "error", err)
		}
		if err := app.Sink.Close(); err != nil {
			app.logger.Warn("Failed to close storage", "error", err)
		}
		app.Sink = nil
	}
}

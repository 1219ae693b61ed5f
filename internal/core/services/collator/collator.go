// Package collator routes radio notices to the decode pool and keeps the
// pool sized to the decode backlog.
package collator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
	"github.com/lcalzada-xor/wsensor/internal/core/services/thresher"
	"github.com/lcalzada-xor/wsensor/internal/telemetry"
)

// Pool defaults.
const (
	DefaultMaxWorkers   = 4
	DefaultThreshold    = 10.0
	DefaultQueueSize    = 4096
	DefaultHousekeeping = time.Second
	DefaultDrainTimeout = time.Second

	noticeBuffer   = 256
	drainQuiet     = 50 * time.Millisecond
	joinTimeout    = 5 * time.Second
	controlTimeout = time.Second
)

var (
	// ErrNoWorkers is returned when the pool could not have a live worker.
	ErrNoWorkers = errors.New("decode pool needs at least one worker")
	// ErrWorkerBounds is returned when max workers is below min workers.
	ErrWorkerBounds = errors.New("max workers below min workers")
)

// Config configures the collator and its decode pool.
type Config struct {
	MinWorkers   int
	MaxWorkers   int
	Threshold    float64 // backlog per worker that triggers growth
	QueueSize    int
	Housekeeping time.Duration
	DrainTimeout time.Duration
	Session      string

	Sink      ports.Sink
	Frames    ports.FrameSubmitter
	Capture   ports.CaptureWriter
	Responder ports.CommandResponder
	Events    ports.EventPublisher
	Logger    *slog.Logger
}

type workerHandle struct {
	w        *thresher.Worker
	started  time.Time
	retiring bool
}

type radioEntry struct {
	rec  domain.RadioRecord
	ring domain.SlotReader
}

// Collator is the single coordinator between the radio captures and the
// decode workers. Every map and slice below is owned by the Run goroutine.
type Collator struct {
	cfg    Config
	logger *slog.Logger

	notices chan domain.Notice
	tasks   chan domain.FrameSlot
	reports chan thresher.Report
	exits   chan thresher.Exit

	workers  []*workerHandle // oldest first
	radios   map[string]radioEntry
	pending  map[string]int
	backlog  int
	retiring int
	stopping bool
	sinkCtx  context.Context

	mu       sync.RWMutex
	snapshot []domain.RadioRecord
	live     atomic.Int64
	queued   atomic.Int64
}

// New validates cfg and builds an idle collator.
func New(cfg Config) (*Collator, error) {
	if cfg.MinWorkers < 1 {
		return nil, ErrNoWorkers
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = max(DefaultMaxWorkers, cfg.MinWorkers)
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		return nil, fmt.Errorf("%w: %d < %d", ErrWorkerBounds, cfg.MaxWorkers, cfg.MinWorkers)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Housekeeping <= 0 {
		cfg.Housekeeping = DefaultHousekeeping
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Collator{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "collator"),
		notices: make(chan domain.Notice, noticeBuffer),
		tasks:   make(chan domain.FrameSlot, cfg.QueueSize),
		reports: make(chan thresher.Report, cfg.MaxWorkers*4),
		exits:   make(chan thresher.Exit, cfg.MaxWorkers),
		radios:  make(map[string]radioEntry),
		pending: make(map[string]int),
	}, nil
}

// Notices is the channel radio captures report to.
func (c *Collator) Notices() chan<- domain.Notice { return c.notices }

// Session returns the session id stamped on every record.
func (c *Collator) Session() string { return c.cfg.Session }

// Workers returns the number of live decode workers.
func (c *Collator) Workers() int { return int(c.live.Load()) }

// Backlog returns the number of queued or in-progress decode tasks.
func (c *Collator) Backlog() int { return int(c.queued.Load()) }

// Radios returns the radios currently up.
func (c *Collator) Radios() []domain.RadioRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.RadioRecord(nil), c.snapshot...)
}

// Radio returns the radio currently up in role.
func (c *Collator) Radio(role domain.Role) (domain.RadioRecord, bool) {
	for _, r := range c.Radios() {
		if r.Role == role {
			return r, true
		}
	}
	return domain.RadioRecord{}, false
}

// Run starts the minimum pool and dispatches notices until ctx is cancelled
// or the sink fails fatally. Either way the pool is shut down before Run
// returns.
func (c *Collator) Run(ctx context.Context) error {
	c.sinkCtx = context.WithoutCancel(ctx)
	for range c.cfg.MinWorkers {
		c.spawn()
	}
	if len(c.workers) == 0 {
		return ErrNoWorkers
	}
	c.logger.Info("Collator started", "session", c.cfg.Session, "workers", len(c.workers),
		"min", c.cfg.MinWorkers, "max", c.cfg.MaxWorkers)

	ticker := time.NewTicker(c.cfg.Housekeeping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case n := <-c.notices:
			if err := c.handle(n); err != nil {
				c.logger.Error("Sink failed, stopping collator", "error", err)
				c.shutdown()
				return err
			}
		case r := <-c.reports:
			c.complete(r)
		case x := <-c.exits:
			c.retired(x)
		case <-ticker.C:
			c.housekeeping()
		}
	}
}

func (c *Collator) handle(n domain.Notice) error {
	switch v := n.(type) {
	case domain.FrameNotice:
		c.enqueue(v.Slot)
		c.evaluate()
	case domain.RadioUpNotice:
		return c.radioUp(v.Radio, v.Ring)
	case domain.RadioDownNotice:
		return c.radioDown(v.MAC, v.Role, nil)
	case domain.RadioFailNotice:
		return c.radioDown(v.MAC, v.Role, v.Err)
	case domain.ScannerNotice:
		c.scannerEvent(v)
	}
	return nil
}

func (c *Collator) enqueue(slot domain.FrameSlot) {
	entry, ok := c.radios[slot.Owner]
	if !ok {
		telemetry.FramesDropped.WithLabelValues(telemetry.UnknownRadio, "unregistered").Inc()
		return
	}
	select {
	case c.tasks <- slot:
		c.pending[slot.Owner]++
		c.backlog++
		c.queued.Store(int64(c.backlog))
	default:
		telemetry.FramesDropped.WithLabelValues(string(entry.rec.Role), "backlog").Inc()
	}
}

// complete accounts for one finished task. A radio's pending entry is
// removed as soon as it drains.
func (c *Collator) complete(r thresher.Report) {
	n, ok := c.pending[r.MAC]
	if !ok {
		return
	}
	if n <= 1 {
		delete(c.pending, r.MAC)
	} else {
		c.pending[r.MAC] = n - 1
	}
	c.backlog--
	c.queued.Store(int64(c.backlog))
}

// evaluate applies one scaling decision. At most one worker is retiring at
// a time, so the live count never drops below the minimum.
func (c *Collator) evaluate() {
	active := len(c.workers) - c.retiring
	d := Scale(c.backlog, active, c.cfg.MinWorkers, c.cfg.MaxWorkers, c.cfg.Threshold)
	switch d {
	case Grow:
		if len(c.workers) >= c.cfg.MaxWorkers {
			return
		}
		c.spawn()
	case Shrink:
		if c.retiring > 0 {
			return
		}
		c.retireOldest()
	default:
		return
	}
	telemetry.ScalingDecisions.WithLabelValues(d.String()).Inc()
	c.logger.Debug("Pool rescaled", "decision", d.String(), "backlog", c.backlog, "workers", len(c.workers)-c.retiring)
}

// spawn starts a worker and replays the session and radio roster to it
// before it can take a task.
func (c *Collator) spawn() {
	id := "thresher-" + uuid.NewString()[:8]
	w := thresher.New(id, c.tasks, c.reports, c.exits, thresher.Config{
		Frames:  c.cfg.Frames,
		Capture: c.cfg.Capture,
		Logger:  c.cfg.Logger,
	})
	ctl := w.Control()
	ctl <- thresher.SetSession{ID: c.cfg.Session}
	for _, r := range c.radios {
		ctl <- thresher.Register{Radio: r.rec, Ring: r.ring}
	}

	c.workers = append(c.workers, &workerHandle{w: w, started: time.Now()})
	go w.Run()
	c.updateGauges()
	c.logger.Debug("Worker spawned", "worker", id, "workers", len(c.workers))
}

func (c *Collator) retireOldest() {
	for _, h := range c.workers {
		if h.retiring {
			continue
		}
		h.retiring = true
		c.retiring++
		c.send(h, thresher.Poison{})
		c.logger.Debug("Retiring worker", "worker", h.w.ID(), "age", time.Since(h.started).Round(time.Millisecond))
		return
	}
}

// retired removes an exited worker and tops the pool back up to its
// minimum.
func (c *Collator) retired(x thresher.Exit) {
	idx := -1
	for i, h := range c.workers {
		if h.w.ID() == x.Worker {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	if c.workers[idx].retiring {
		c.retiring--
	}
	c.workers = append(c.workers[:idx], c.workers[idx+1:]...)

	if x.Err != nil {
		c.event(domain.LevelError, x.Worker, "Worker retired after failure", "error", x.Err.Error())
	}
	if !c.stopping {
		for len(c.workers)-c.retiring < c.cfg.MinWorkers {
			c.spawn()
		}
	}
	c.updateGauges()
}

func (c *Collator) broadcast(msg thresher.Control) {
	for _, h := range c.workers {
		c.send(h, msg)
	}
}

// send gives up on a worker that stopped reading its control channel.
func (c *Collator) send(h *workerHandle, msg thresher.Control) {
	t := time.NewTimer(controlTimeout)
	defer t.Stop()
	select {
	case h.w.Control() <- msg:
	case <-t.C:
		c.logger.Warn("Worker not taking control messages", "worker", h.w.ID(), "message", fmt.Sprintf("%T", msg))
	}
}

func (c *Collator) radioUp(rec domain.RadioRecord, ring domain.SlotReader) error {
	c.radios[rec.MAC] = radioEntry{rec: rec, ring: ring}
	c.publishRadios()
	c.broadcast(thresher.Register{Radio: rec, Ring: ring})
	c.event(domain.LevelInfo, string(rec.Role), "Radio up",
		"mac", rec.MAC, "vnic", rec.VNIC, "driver", rec.Driver, "scan_list", fmt.Sprint(len(rec.ScanList)))

	if c.cfg.Sink == nil {
		return nil
	}
	if err := c.sinkResult("radio_up", c.cfg.Sink.RadioUp(c.sinkCtx, c.cfg.Session, rec)); err != nil {
		return err
	}
	return c.sinkResult("antenna", c.cfg.Sink.Antenna(c.sinkCtx, c.cfg.Session, rec.MAC, rec.Antenna))
}

// radioDown forgets a radio. Tasks already queued for it are dropped by the
// workers once they see the Unregister.
func (c *Collator) radioDown(mac string, role domain.Role, cause error) error {
	if _, ok := c.radios[mac]; !ok {
		c.logger.Warn("Down notice for unknown radio", "mac", mac, "role", string(role))
		return nil
	}
	if cause != nil {
		c.event(domain.LevelError, string(role), "Radio failed", "mac", mac, "error", cause.Error())
	} else {
		c.event(domain.LevelInfo, string(role), "Radio down", "mac", mac)
	}

	delete(c.radios, mac)
	c.publishRadios()
	c.broadcast(thresher.Unregister{MAC: mac})
	if n := c.pending[mac]; n > 0 {
		c.logger.Debug("Discarding pending tasks", "mac", mac, "pending", n)
	}

	if c.cfg.Sink == nil {
		return nil
	}
	return c.sinkResult("radio_down", c.cfg.Sink.RadioDown(c.sinkCtx, c.cfg.Session, mac, time.Now()))
}

func (c *Collator) scannerEvent(n domain.ScannerNotice) {
	ev := n.Event
	if ev.CmdID != "" && c.cfg.Responder != nil {
		c.cfg.Responder.Respond(n.Role, ev)
	}

	origin := string(n.Role)
	switch ev.Kind {
	case domain.EventStateChanged:
		c.event(domain.LevelInfo, origin, "Scanner state changed", "state", ev.State.String(), "entry", ev.Entry.String())
	case domain.EventTuneFailed:
		c.event(domain.LevelWarn, origin, "Tune failed", "entry", ev.Entry.String(), "error", fmt.Sprint(ev.Err))
	case domain.EventDwellUpdated:
		c.event(domain.LevelInfo, origin, "Dwell updated", "dwell", ev.Payload)
	case domain.EventTuned:
		c.logger.Debug("Tuned", "radio", origin, "entry", ev.Entry.String())
	}
}

// sinkResult logs and counts a sink failure. Only fatal failures are
// returned.
func (c *Collator) sinkResult(op string, err error) error {
	if err == nil {
		return nil
	}
	telemetry.SinkErrors.WithLabelValues(op).Inc()
	if ports.IsFatal(err) {
		return fmt.Errorf("sink %s: %w", op, err)
	}
	c.event(domain.LevelWarn, "sink", "Sink call failed", "op", op, "error", err.Error())
	return nil
}

func (c *Collator) housekeeping() {
	for len(c.workers)-c.retiring < c.cfg.MinWorkers {
		c.spawn()
	}
	c.evaluate()
	c.updateGauges()
}

func (c *Collator) updateGauges() {
	live := len(c.workers) - c.retiring
	c.live.Store(int64(live))
	telemetry.WorkersLive.Set(float64(live))
	telemetry.Backlog.Set(float64(c.backlog))
}

func (c *Collator) publishRadios() {
	recs := make([]domain.RadioRecord, 0, len(c.radios))
	for _, r := range c.radios {
		recs = append(recs, r.rec)
	}
	c.mu.Lock()
	c.snapshot = recs
	c.mu.Unlock()
}

// event logs a pipeline event and publishes it to the status feed.
func (c *Collator) event(level domain.Level, originator, msg string, kv ...string) {
	fields := make(map[string]any, len(kv)/2)
	attrs := []any{"originator", originator}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
		attrs = append(attrs, kv[i], kv[i+1])
	}

	switch level {
	case domain.LevelError:
		c.logger.Error(msg, attrs...)
	case domain.LevelWarn:
		c.logger.Warn(msg, attrs...)
	default:
		c.logger.Info(msg, attrs...)
	}

	if c.cfg.Events != nil {
		c.cfg.Events.Publish(domain.Event{
			Time:       time.Now(),
			Level:      level,
			Originator: originator,
			Message:    msg,
			Fields:     fields,
		})
	}
}

// shutdown drains the notices still in flight, closes the task queue so
// every worker finishes what is queued and exits, then joins them.
func (c *Collator) shutdown() {
	c.logger.Info("Collator stopping", "workers", len(c.workers), "backlog", c.backlog)
	c.drain()

	c.stopping = true
	close(c.tasks)

	t := time.NewTimer(joinTimeout)
	defer t.Stop()
	for len(c.workers) > 0 {
		select {
		case r := <-c.reports:
			c.complete(r)
		case x := <-c.exits:
			c.retired(x)
		case <-t.C:
			c.logger.Warn("Workers did not stop in time", "workers", len(c.workers))
			return
		}
	}
	c.updateGauges()
	c.logger.Info("Collator stopped", "backlog", c.backlog)
}

func (c *Collator) drain() {
	deadline := time.NewTimer(c.cfg.DrainTimeout)
	defer deadline.Stop()
	quiet := time.NewTimer(drainQuiet)
	defer quiet.Stop()

	for {
		select {
		case n := <-c.notices:
			if err := c.handle(n); err != nil {
				c.logger.Warn("Sink failed while draining", "error", err)
			}
			quiet.Reset(drainQuiet)
		case r := <-c.reports:
			c.complete(r)
		case x := <-c.exits:
			c.retired(x)
		case <-quiet.C:
			return
		case <-deadline.C:
			return
		}
	}
}

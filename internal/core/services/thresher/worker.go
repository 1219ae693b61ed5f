// Package thresher implements the decode workers fed by the collator.
package thresher

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/codec"
	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/ring"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
	"github.com/lcalzada-xor/wsensor/internal/telemetry"
)

const controlBuffer = 32

// ErrPanic marks a worker that retired after a panic while decoding.
var ErrPanic = errors.New("decode worker panicked")

// Control is a message from the collator to one worker.
type Control interface {
	control()
}

// Register adds a radio to the worker's roster.
type Register struct {
	Radio domain.RadioRecord
	Ring  domain.SlotReader
}

// Unregister removes a radio from the roster. Later tasks for it are
// dropped.
type Unregister struct {
	MAC string
}

// SetSession sets the session id stamped on every record.
type SetSession struct {
	ID string
}

// Poison retires the worker.
type Poison struct{}

func (Register) control()   {}
func (Unregister) control() {}
func (SetSession) control() {}
func (Poison) control()     {}

// Outcome is the result of one decode task.
type Outcome int

const (
	OutcomeFull Outcome = iota
	OutcomeRadiotapOnly
	OutcomeEmpty
	OutcomeStale
	OutcomeUnregistered
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFull:
		return "full"
	case OutcomeRadiotapOnly:
		return "radiotap-only"
	case OutcomeEmpty:
		return "empty"
	case OutcomeStale:
		return "stale"
	case OutcomeUnregistered:
		return "unregistered"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Report is sent to the collator once per task, whatever its outcome.
type Report struct {
	Worker  string
	MAC     string
	Outcome Outcome
}

// Exit is sent to the collator when a worker stops. Err is set when the
// worker asked to be retired after a failure.
type Exit struct {
	Worker string
	Err    error
}

// Config holds the collaborators shared by every worker.
type Config struct {
	Frames  ports.FrameSubmitter
	Capture ports.CaptureWriter // nil disables raw capture files
	Logger  *slog.Logger
}

type rosterEntry struct {
	role   domain.Role
	record bool
	ring   domain.SlotReader
}

// Worker decodes frame slots taken from the shared task queue. Its roster
// and session are private and only change through Control messages.
type Worker struct {
	id      string
	tasks   <-chan domain.FrameSlot
	ctl     chan Control
	reports chan<- Report
	exits   chan<- Exit
	cfg     Config
	logger  *slog.Logger

	roster  map[string]rosterEntry
	session string
	buf     []byte
}

// New builds a worker. It does nothing until Run.
func New(id string, tasks <-chan domain.FrameSlot, reports chan<- Report, exits chan<- Exit, cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:      id,
		tasks:   tasks,
		ctl:     make(chan Control, controlBuffer),
		reports: reports,
		exits:   exits,
		cfg:     cfg,
		logger:  logger.With("component", "thresher", "worker", id),
		roster:  make(map[string]rosterEntry),
		buf:     make([]byte, 0, ring.MaxFrameSize),
	}
}

// ID returns the worker id.
func (w *Worker) ID() string { return w.id }

// Control returns the worker's control channel.
func (w *Worker) Control() chan<- Control { return w.ctl }

// Run decodes tasks until it is poisoned, the task queue is closed or a
// task fails. It always ends with an Exit.
func (w *Worker) Run() {
	w.logger.Debug("Worker started")
	err := w.loop()
	if err != nil {
		w.logger.Error("Worker requesting retirement", "error", err)
	} else {
		w.logger.Debug("Worker stopped")
	}
	w.exits <- Exit{Worker: w.id, Err: err}
}

func (w *Worker) loop() error {
	for {
		if w.drainControl() {
			return nil
		}
		select {
		case c := <-w.ctl:
			if w.apply(c) {
				return nil
			}
		case slot, ok := <-w.tasks:
			if !ok {
				return nil
			}
			// a radio is registered before its first task is queued
			poisoned := w.drainControl()
			if err := w.process(slot); err != nil {
				return err
			}
			if poisoned {
				return nil
			}
		}
	}
}

// drainControl applies every queued control message and reports whether
// one of them was a Poison.
func (w *Worker) drainControl() bool {
	poisoned := false
	for {
		select {
		case c := <-w.ctl:
			if w.apply(c) {
				poisoned = true
			}
		default:
			return poisoned
		}
	}
}

func (w *Worker) apply(c Control) bool {
	switch m := c.(type) {
	case Register:
		w.roster[m.Radio.MAC] = rosterEntry{role: m.Radio.Role, record: m.Radio.Record, ring: m.Ring}
	case Unregister:
		delete(w.roster, m.MAC)
	case SetSession:
		w.session = m.ID
	case Poison:
		return true
	}
	return false
}

// process decodes one slot. The collator always gets a Report, even when
// decoding panics.
func (w *Worker) process(slot domain.FrameSlot) (err error) {
	outcome := OutcomeFailed
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		w.reports <- Report{Worker: w.id, MAC: slot.Owner, Outcome: outcome}
	}()
	outcome = w.decode(slot)
	return nil
}

func (w *Worker) decode(slot domain.FrameSlot) Outcome {
	entry, ok := w.roster[slot.Owner]
	if !ok {
		w.logger.Debug("Dropping frame from unregistered radio", "mac", slot.Owner, "seq", slot.Seq)
		telemetry.FramesDropped.WithLabelValues(telemetry.UnknownRadio, "unregistered").Inc()
		return OutcomeUnregistered
	}
	label := string(entry.role)

	data, err := entry.ring.ReadSlot(slot, w.buf)
	w.buf = data[:0]
	if err != nil {
		w.logger.Warn("Dropping frame", "radio", label, "slot", slot.Index, "seq", slot.Seq, "error", err)
		telemetry.FramesDropped.WithLabelValues(label, "stale").Inc()
		return OutcomeStale
	}

	decoded := codec.Decode(data)
	rec := BuildRecord(w.session, slot, decoded)

	outcome := OutcomeFull
	switch v := decoded.(type) {
	case codec.RadiotapOnly:
		outcome = OutcomeRadiotapOnly
		w.logger.Warn("Malformed MPDU", "radio", label, "seq", slot.Seq, "error", v.Err)
	case codec.Empty:
		outcome = OutcomeEmpty
		w.logger.Warn("Malformed radiotap header", "radio", label, "seq", slot.Seq, "error", v.Err)
	}
	telemetry.FramesDecoded.WithLabelValues(label, outcome.String()).Inc()

	if entry.record && w.cfg.Capture != nil {
		if err := w.cfg.Capture.WriteFrame(slot.TS, data); err != nil {
			w.logger.Warn("Failed to write capture file", "radio", label, "error", err)
		}
	}
	if w.cfg.Frames != nil && !w.cfg.Frames.Submit(rec) {
		telemetry.FramesDropped.WithLabelValues(label, "sink").Inc()
	}
	return outcome
}

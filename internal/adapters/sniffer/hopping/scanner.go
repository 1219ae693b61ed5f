package hopping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// Scanner defaults.
const (
	DefaultDwell     = 250 * time.Millisecond
	DefaultMinDwell  = 100 * time.Millisecond
	DefaultDwellStep = 50 * time.Millisecond
	DefaultEpoch     = 3
	DefaultHigh      = 0.10
	DefaultLow       = 0.05

	eventBuffer   = 64
	commandBuffer = 8
)

// ErrStopped is returned by Submit once the scanner has exited.
var ErrStopped = errors.New("scanner stopped")

// Config configures one radio's Scanner.
type Config struct {
	Iface   string
	Entries []domain.ScanEntry
	// Dwell is the original dwell of every entry; Dwells overrides it per
	// entry when set.
	Dwell   time.Duration
	Dwells  []time.Duration
	Params  DwellParams
	Epoch   int // scan list traversals per dwell recompute
	Initial domain.ScanState
}

// Scanner sweeps a scan list, adapting each entry's dwell to the traffic
// seen on it, and answers tuning commands.
type Scanner struct {
	iface    string
	entries  []domain.ScanEntry
	original []time.Duration
	params   DwellParams
	epoch    int
	switcher ChannelSwitcher
	logger   *slog.Logger

	cmds   chan Command
	events chan domain.ScanEvent
	done   chan struct{}

	state AtomicState
	hist  []atomic.Uint64

	// loop-owned
	idx   int
	scans int
	dwell []time.Duration

	mu      sync.RWMutex
	current domain.ScanEntry
	snap    []time.Duration

	dropped atomic.Uint64
}

// NewScanner validates cfg and builds a scanner. It does not tune the radio
// until Run.
func NewScanner(cfg Config, switcher ChannelSwitcher, logger *slog.Logger) (*Scanner, error) {
	if len(cfg.Entries) == 0 {
		return nil, domain.ErrEmptyScanList
	}
	if switcher == nil {
		return nil, errors.New("scanner needs a channel switcher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dwell <= 0 {
		cfg.Dwell = DefaultDwell
	}
	if cfg.Epoch <= 0 {
		cfg.Epoch = DefaultEpoch
	}
	if cfg.Params == (DwellParams{}) {
		cfg.Params = DwellParams{Min: DefaultMinDwell, Step: DefaultDwellStep, High: DefaultHigh, Low: DefaultLow}
	}
	if cfg.Initial != domain.StateScan && cfg.Initial != domain.StatePause {
		return nil, fmt.Errorf("initial state must be scan or pause, got %s", cfg.Initial)
	}

	// repeated entries keep their first position and dwell
	var list []domain.ScanEntry
	var original []time.Duration
	seen := make(map[domain.ScanEntry]bool, len(cfg.Entries))
	for i, e := range cfg.Entries {
		if seen[e] {
			continue
		}
		seen[e] = true
		d := cfg.Dwell
		if i < len(cfg.Dwells) && cfg.Dwells[i] > 0 {
			d = cfg.Dwells[i]
		}
		list = append(list, e)
		original = append(original, d)
	}
	dwell := make([]time.Duration, len(original))
	copy(dwell, original)

	s := &Scanner{
		iface:    cfg.Iface,
		entries:  list,
		original: original,
		params:   cfg.Params,
		epoch:    cfg.Epoch,
		switcher: switcher,
		logger:   logger.With("component", "scanner", "iface", cfg.Iface),
		cmds:     make(chan Command, commandBuffer),
		events:   make(chan domain.ScanEvent, eventBuffer),
		done:     make(chan struct{}),
		hist:     make([]atomic.Uint64, len(list)),
		dwell:    dwell,
		snap:     append([]time.Duration(nil), dwell...),
		current:  list[0],
	}
	s.state.Set(cfg.Initial)
	return s, nil
}

// Events is the scanner's outbound queue, drained by the radio capture.
func (s *Scanner) Events() <-chan domain.ScanEvent { return s.events }

// State returns the current tuning state.
func (s *Scanner) State() domain.ScanState { return s.state.Get() }

// Entries returns the scan list.
func (s *Scanner) Entries() []domain.ScanEntry { return s.entries }

// Current returns the entry the radio was last tuned to.
func (s *Scanner) Current() domain.ScanEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Dwell returns a copy of the current dwell schedule.
func (s *Scanner) Dwell() []time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]time.Duration(nil), s.snap...)
}

// Dropped returns how many events were discarded on a full queue.
func (s *Scanner) Dropped() uint64 { return s.dropped.Load() }

// Tally counts one frame against scan list entry idx.
func (s *Scanner) Tally(idx int) {
	if idx >= 0 && idx < len(s.hist) {
		s.hist[idx].Add(1)
	}
}

// Submit queues a command. The answer arrives on Events tagged with the
// command id.
func (s *Scanner) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.cmds <- cmd:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitTokens parses and queues a command. Malformed tokens are answered
// with an error event and returned as a *CommandError.
func (s *Scanner) SubmitTokens(ctx context.Context, id, name string, params []string) error {
	cmd, err := ParseCommand(id, name, params)
	if err != nil {
		var cerr *CommandError
		if errors.As(err, &cerr) {
			s.reject(cerr)
		}
		return err
	}
	return s.Submit(ctx, cmd)
}

// Run tunes the first entry and then sweeps until ctx is cancelled. While
// scanning it waits for commands for at most the remaining dwell of the
// current entry; in the static states it waits for commands only.
func (s *Scanner) Run(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("Starting channel scanner", "entries", len(s.entries), "state", s.State())

	s.resetHistogram()
	s.tune(s.idx)
	remaining := s.dwell[s.idx]

	for {
		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if s.State() == domain.StateScan {
			timer = time.NewTimer(remaining)
			timeout = timer.C
		}
		start := time.Now()

		select {
		case <-ctx.Done():
			stopTimer(timer)
			s.logger.Info("Stopping channel scanner")
			return
		case cmd := <-s.cmds:
			stopTimer(timer)
			if s.State() == domain.StateScan {
				remaining = max(remaining-time.Since(start), 0)
			}
			if s.handle(cmd) {
				remaining = s.dwell[s.idx]
			}
		case <-timeout:
			s.advance()
			remaining = s.dwell[s.idx]
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// advance moves to the next entry, recomputing dwell at epoch boundaries.
func (s *Scanner) advance() {
	s.idx = (s.idx + 1) % len(s.entries)
	if s.idx == 0 {
		s.scans++
		if s.scans >= s.epoch {
			s.recompute()
			s.scans = 0
		}
	}
	s.tune(s.idx)
}

func (s *Scanner) recompute() {
	counts := make([]uint64, len(s.hist))
	for i := range s.hist {
		counts[i] = s.hist[i].Swap(0)
	}
	s.dwell = RecomputeDwell(s.dwell, s.original, counts, s.params)

	s.mu.Lock()
	s.snap = append(s.snap[:0], s.dwell...)
	s.mu.Unlock()

	s.logger.Debug("Dwell recomputed", "dwell", s.dwell, "counts", counts)
	s.emit(domain.ScanEvent{Kind: domain.EventDwellUpdated, State: s.State(), Index: s.idx, Payload: fmt.Sprint(s.dwell)})
}

func (s *Scanner) resetHistogram() {
	for i := range s.hist {
		s.hist[i].Store(0)
	}
	s.scans = 0
}

// tune switches to scan list entry idx and reports the outcome.
func (s *Scanner) tune(idx int) {
	s.tuneTo(s.entries[idx], idx)
}

func (s *Scanner) tuneTo(entry domain.ScanEntry, idx int) error {
	if err := s.switcher.SetChannel(s.iface, entry); err != nil {
		s.logger.Warn("Failed to tune", "entry", entry.String(), "error", err)
		s.emit(domain.ScanEvent{Kind: domain.EventTuneFailed, State: s.State(), Entry: entry, Index: idx, Err: err})
		return err
	}
	s.mu.Lock()
	s.current = entry
	s.mu.Unlock()
	s.emit(domain.ScanEvent{Kind: domain.EventTuned, State: s.State(), Entry: entry, Index: idx})
	return nil
}

// handle applies one command and reports whether the dwell clock restarts.
func (s *Scanner) handle(cmd Command) bool {
	id := cmd.CmdID()
	cur := s.State()

	switch c := cmd.(type) {
	case StateCmd:
		s.ok(id, fmt.Sprintf("%s %s", cur, s.Current()))
		return false

	case ScanCmd:
		if cur == domain.StateScan {
			s.reject(&CommandError{ID: id, Reason: ReasonRedundant})
			return false
		}
		s.setState(domain.StateScan)
		s.resetHistogram()
		s.tune(s.idx)
		s.ok(id, s.Current().String())
		return true

	case HoldCmd:
		if cur == domain.StateHold {
			s.reject(&CommandError{ID: id, Reason: ReasonRedundant})
			return false
		}
		s.setState(domain.StateHold)
		s.ok(id, s.Current().String())
		return false

	case PauseCmd:
		if cur == domain.StatePause {
			s.reject(&CommandError{ID: id, Reason: ReasonRedundant})
			return false
		}
		s.setState(domain.StatePause)
		s.ok(id, s.Current().String())
		return false

	case ListenCmd:
		// the channel may have been changed out of band, so never redundant
		if err := s.tuneTo(c.Entry, -1); err != nil {
			s.reject(&CommandError{ID: id, Reason: err.Error()})
			return false
		}
		if cur != domain.StateListen {
			s.setState(domain.StateListen)
		}
		s.ok(id, c.Entry.String())
		return false

	case TxPwrCmd, SpoofCmd:
		s.reject(&CommandError{ID: id, Reason: ReasonUnsupported})
		return false
	}

	s.reject(&CommandError{ID: id, Reason: ReasonInvalid})
	return false
}

func (s *Scanner) setState(st domain.ScanState) {
	s.state.Set(st)
	s.logger.Info("Scanner state changed", "state", st.String())
	s.emit(domain.ScanEvent{Kind: domain.EventStateChanged, State: st, Entry: s.Current(), Index: s.idx})
}

func (s *Scanner) ok(id, payload string) {
	s.emit(domain.ScanEvent{Kind: domain.EventCommandOK, CmdID: id, State: s.State(), Payload: payload})
}

func (s *Scanner) reject(err *CommandError) {
	s.logger.Debug("Command rejected", "id", err.ID, "reason", err.Reason)
	s.emit(domain.ScanEvent{Kind: domain.EventCommandErr, CmdID: err.ID, State: s.State(), Err: err})
}

// emit never blocks the scan clock; events are dropped on a full queue.
func (s *Scanner) emit(ev domain.ScanEvent) {
	ev.At = time.Now()
	select {
	case s.events <- ev:
	default:
		if s.dropped.Add(1) == 1 {
			s.logger.Warn("Scanner event queue full, dropping events")
		}
	}
}

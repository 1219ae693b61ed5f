package hopping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// MockSwitcher captures channel set calls
type MockSwitcher struct {
	mu         sync.Mutex
	calls      []domain.ScanEntry
	shouldFail bool
}

func (m *MockSwitcher) SetChannel(iface string, entry domain.ScanEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, entry)
	if m.shouldFail {
		return fmt.Errorf("mock failure")
	}
	return nil
}

func (m *MockSwitcher) Calls() []domain.ScanEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ScanEntry(nil), m.calls...)
}

func entries(chs ...int) []domain.ScanEntry {
	out := make([]domain.ScanEntry, len(chs))
	for i, ch := range chs {
		out[i] = domain.ScanEntry{Channel: ch}
	}
	return out
}

func newTestScanner(t *testing.T, cfg Config, sw ChannelSwitcher) *Scanner {
	t.Helper()
	if cfg.Iface == "" {
		cfg.Iface = "wlan0mon"
	}
	s, err := NewScanner(cfg, sw, nil)
	require.NoError(t, err)
	return s
}

// nextEvent returns the next event of the given kind, skipping others.
func nextEvent(t *testing.T, s *Scanner, kind domain.ScanEventKind) domain.ScanEvent {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestNewScanner_EmptyScanList(t *testing.T) {
	_, err := NewScanner(Config{Iface: "wlan0"}, &MockSwitcher{}, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyScanList)
}

func TestNewScanner_CollapsesRepeatedEntries(t *testing.T) {
	cfg := Config{
		Entries: entries(1, 6, 1, 11),
		Dwell:   time.Second,
		Dwells:  []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 400 * time.Millisecond},
	}
	s := newTestScanner(t, cfg, &MockSwitcher{})
	assert.Equal(t, entries(1, 6, 11), s.Entries())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, s.Dwell())

	list, err := domain.ParseScanList("1,6,1,11")
	require.NoError(t, err)
	s = newTestScanner(t, Config{Entries: list}, &MockSwitcher{})
	assert.Len(t, s.Entries(), 3)
}

func TestScanner_RepeatedEntryTunedOncePerCycle(t *testing.T) {
	mock := &MockSwitcher{}
	s := newTestScanner(t, Config{Entries: entries(1, 6, 1, 11), Dwell: 2 * time.Millisecond}, mock)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	require.Eventually(t, func() bool { return len(mock.Calls()) >= 6 }, time.Second, time.Millisecond)
	cancel()
	<-s.done

	calls := mock.Calls()
	for cycle := 0; cycle+3 <= len(calls); cycle += 3 {
		seen := map[int]bool{}
		for _, e := range calls[cycle : cycle+3] {
			assert.False(t, seen[e.Channel], "channel %d repeated in cycle", e.Channel)
			seen[e.Channel] = true
		}
		assert.Len(t, seen, 3)
	}
}

func TestNewScanner_RejectsStaticInitialState(t *testing.T) {
	_, err := NewScanner(Config{Entries: entries(1), Initial: domain.StateHold}, &MockSwitcher{}, nil)
	assert.Error(t, err)
}

func TestScanner_RoundRobin(t *testing.T) {
	mock := &MockSwitcher{}
	s := newTestScanner(t, Config{Entries: entries(1, 6, 11), Dwell: time.Second}, mock)

	s.tune(s.idx)
	for i := 0; i < 8; i++ {
		s.advance()
	}

	calls := mock.Calls()
	require.Len(t, calls, 9)
	want := []int{1, 6, 11}
	for i, e := range calls {
		assert.Equal(t, want[i%3], e.Channel, "hop %d", i)
	}
}

func TestScanner_RunSweepsEveryEntryOncePerCycle(t *testing.T) {
	mock := &MockSwitcher{}
	s := newTestScanner(t, Config{Entries: entries(1, 6, 11, 36), Dwell: 2 * time.Millisecond}, mock)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	require.Eventually(t, func() bool { return len(mock.Calls()) >= 8 }, time.Second, time.Millisecond)
	cancel()
	<-s.done

	calls := mock.Calls()
	for cycle := 0; cycle+4 <= len(calls); cycle += 4 {
		seen := map[int]bool{}
		for _, e := range calls[cycle : cycle+4] {
			assert.False(t, seen[e.Channel], "channel %d repeated in cycle", e.Channel)
			seen[e.Channel] = true
		}
		assert.Len(t, seen, 4)
	}
}

func TestScanner_StaticStatesDoNotHop(t *testing.T) {
	mock := &MockSwitcher{}
	s := newTestScanner(t, Config{Entries: entries(1, 6), Dwell: time.Millisecond, Initial: domain.StatePause}, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, mock.Calls(), 1)
	assert.Equal(t, domain.StatePause, s.State())
}

func TestScanner_TuneFailureIsNotFatal(t *testing.T) {
	mock := &MockSwitcher{shouldFail: true}
	s := newTestScanner(t, Config{Entries: entries(1, 6), Dwell: time.Millisecond}, mock)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	ev := nextEvent(t, s, domain.EventTuneFailed)
	assert.Error(t, ev.Err)
	require.Eventually(t, func() bool { return len(mock.Calls()) > 3 }, time.Second, time.Millisecond)
	cancel()
	<-s.done
}

func TestScanner_EpochRecomputeAndHistogramReset(t *testing.T) {
	mock := &MockSwitcher{}
	s := newTestScanner(t, Config{
		Entries: entries(1, 6, 11),
		Dwell:   time.Second,
		Epoch:   1,
		Params:  DwellParams{Min: 500 * time.Millisecond, Step: 100 * time.Millisecond, High: 0.10, Low: 0.05},
	}, mock)

	s.Tally(0)
	for i := 0; i < 50; i++ {
		s.Tally(1)
	}
	s.Tally(2)
	s.Tally(7) // out of range, ignored

	for i := 0; i < 3; i++ {
		s.advance()
	}

	assert.Equal(t, []time.Duration{900 * time.Millisecond, time.Second, 900 * time.Millisecond}, s.Dwell())
	for i := range s.hist {
		assert.Zero(t, s.hist[i].Load())
	}
	ev := nextEvent(t, s, domain.EventDwellUpdated)
	assert.NotEmpty(t, ev.Payload)
}

func TestScanner_Commands(t *testing.T) {
	tests := []struct {
		name    string
		initial domain.ScanState
		cmd     Command
		reason  string
		want    domain.ScanState
	}{
		{"pause while paused", domain.StatePause, PauseCmd{cmdBase{"7"}}, ReasonRedundant, domain.StatePause},
		{"scan while scanning", domain.StateScan, ScanCmd{cmdBase{"8"}}, ReasonRedundant, domain.StateScan},
		{"hold from scan", domain.StateScan, HoldCmd{cmdBase{"9"}}, "", domain.StateHold},
		{"scan from pause", domain.StatePause, ScanCmd{cmdBase{"10"}}, "", domain.StateScan},
		{"pause from scan", domain.StateScan, PauseCmd{cmdBase{"11"}}, "", domain.StatePause},
		{"txpwr", domain.StateScan, TxPwrCmd{cmdBase: cmdBase{"12"}, Power: 20}, ReasonUnsupported, domain.StateScan},
		{"spoof", domain.StatePause, SpoofCmd{cmdBase: cmdBase{"13"}, MAC: "00:11:22:33:44:55"}, ReasonUnsupported, domain.StatePause},
		{"state", domain.StatePause, StateCmd{cmdBase{"14"}}, "", domain.StatePause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScanner(t, Config{Entries: entries(1, 6), Initial: tt.initial}, &MockSwitcher{})
			s.handle(tt.cmd)

			if tt.reason != "" {
				ev := nextEvent(t, s, domain.EventCommandErr)
				assert.Equal(t, tt.cmd.CmdID(), ev.CmdID)
				var cerr *CommandError
				require.True(t, errors.As(ev.Err, &cerr))
				assert.Equal(t, tt.reason, cerr.Reason)
				assert.Equal(t, tt.cmd.CmdID(), cerr.ID)
			} else {
				ev := nextEvent(t, s, domain.EventCommandOK)
				assert.Equal(t, tt.cmd.CmdID(), ev.CmdID)
			}
			assert.Equal(t, tt.want, s.State())
		})
	}
}

func TestScanner_StateReportsTuning(t *testing.T) {
	s := newTestScanner(t, Config{Entries: []domain.ScanEntry{{Channel: 6, Width: domain.WidthHT20}}, Initial: domain.StatePause}, &MockSwitcher{})
	s.tune(0)
	s.handle(StateCmd{cmdBase{"1"}})
	ev := nextEvent(t, s, domain.EventCommandOK)
	assert.Equal(t, "pause 6:HT20", ev.Payload)
}

func TestScanner_ListenIsNeverRedundant(t *testing.T) {
	mock := &MockSwitcher{}
	s := newTestScanner(t, Config{Entries: entries(1, 6)}, mock)
	target := domain.ScanEntry{Channel: 36, Width: domain.WidthHT40Plus}

	for _, id := range []string{"1", "2"} {
		s.handle(ListenCmd{cmdBase: cmdBase{id}, Entry: target})
		ev := nextEvent(t, s, domain.EventCommandOK)
		assert.Equal(t, id, ev.CmdID)
	}
	assert.Equal(t, domain.StateListen, s.State())
	assert.Equal(t, target, s.Current())
	assert.Equal(t, []domain.ScanEntry{target, target}, mock.Calls())
}

func TestScanner_ListenTuneFailure(t *testing.T) {
	s := newTestScanner(t, Config{Entries: entries(1)}, &MockSwitcher{shouldFail: true})
	s.handle(ListenCmd{cmdBase: cmdBase{"5"}, Entry: domain.ScanEntry{Channel: 40}})
	ev := nextEvent(t, s, domain.EventCommandErr)
	assert.Equal(t, "5", ev.CmdID)
	assert.Equal(t, domain.StateScan, s.State())
}

func TestScanner_SubmitThroughRun(t *testing.T) {
	s := newTestScanner(t, Config{Entries: entries(1, 6), Initial: domain.StatePause}, &MockSwitcher{})
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	require.NoError(t, s.SubmitTokens(ctx, "42", "pause", nil))
	ev := nextEvent(t, s, domain.EventCommandErr)
	assert.Equal(t, "42", ev.CmdID)
	assert.Equal(t, "command 42: redundant command", ev.Err.Error())

	err := s.SubmitTokens(ctx, "43", "bogus", nil)
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ReasonInvalid, cerr.Reason)
	ev = nextEvent(t, s, domain.EventCommandErr)
	assert.Equal(t, "43", ev.CmdID)

	cancel()
	<-s.done
	assert.ErrorIs(t, s.Submit(context.Background(), ScanCmd{cmdBase{"44"}}), ErrStopped)
}

package thresher

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/ring"
	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/sniffertest"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/telemetry"
)

const radioMAC = "00:c0:ca:00:00:01"

type mockSubmitter struct {
	mu   sync.Mutex
	recs []domain.FrameRecord
	full bool
}

func (m *mockSubmitter) Submit(rec domain.FrameRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.recs = append(m.recs, rec)
	return true
}

func (m *mockSubmitter) records() []domain.FrameRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FrameRecord(nil), m.recs...)
}

type mockCapture struct {
	mu     sync.Mutex
	frames [][]byte
}

func (m *mockCapture) WriteFrame(ts time.Time, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, append([]byte(nil), data...))
	return nil
}

func (m *mockCapture) Close() error { return nil }

type panicReader struct{}

func (panicReader) ReadSlot(domain.FrameSlot, []byte) ([]byte, error) {
	panic("corrupted ring")
}

type fixture struct {
	worker  *Worker
	tasks   chan domain.FrameSlot
	reports chan Report
	exits   chan Exit
	frames  *mockSubmitter
	capture *mockCapture
	ring    *ring.Ring
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rg, err := ring.New(radioMAC, 4, 512)
	require.NoError(t, err)
	f := &fixture{
		tasks:   make(chan domain.FrameSlot, 8),
		reports: make(chan Report, 8),
		exits:   make(chan Exit, 1),
		frames:  &mockSubmitter{},
		capture: &mockCapture{},
		ring:    rg,
	}
	f.worker = New("w1", f.tasks, f.reports, f.exits, Config{Frames: f.frames, Capture: f.capture})
	return f
}

func (f *fixture) register(record bool) {
	f.worker.Control() <- SetSession{ID: "session-1"}
	f.worker.Control() <- Register{
		Radio: domain.RadioRecord{MAC: radioMAC, Role: domain.RolePrimary, Record: record},
		Ring:  f.ring,
	}
}

func (f *fixture) report(t *testing.T) Report {
	t.Helper()
	select {
	case r := <-f.reports:
		return r
	case <-time.After(time.Second):
		t.Fatal("no report")
		return Report{}
	}
}

func (f *fixture) exit(t *testing.T) Exit {
	t.Helper()
	select {
	case x := <-f.exits:
		return x
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
		return Exit{}
	}
}

func beacon() []byte {
	bssid := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	return sniffertest.Frame(sniffertest.Radiotap(2437, -42, false), sniffertest.Beacon(bssid, "lab", 6, 9))
}

func TestWorkerDecodesFrame(t *testing.T) {
	f := newFixture(t)
	f.register(true)
	go f.worker.Run()

	frame := beacon()
	f.tasks <- f.ring.Write(frame, time.Now())

	r := f.report(t)
	assert.Equal(t, "w1", r.Worker)
	assert.Equal(t, radioMAC, r.MAC)
	assert.Equal(t, OutcomeFull, r.Outcome)

	recs := f.frames.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "session-1", recs[0].Session)
	assert.Equal(t, "lab", recs[0].SSID)
	assert.Equal(t, 6, recs[0].Channel)

	f.capture.mu.Lock()
	assert.Equal(t, [][]byte{frame}, f.capture.frames)
	f.capture.mu.Unlock()

	close(f.tasks)
	assert.NoError(t, f.exit(t).Err)
}

func TestWorkerSkipsCaptureWithoutRecordPolicy(t *testing.T) {
	f := newFixture(t)
	f.register(false)
	go f.worker.Run()

	f.tasks <- f.ring.Write(beacon(), time.Now())
	assert.Equal(t, OutcomeFull, f.report(t).Outcome)
	assert.Empty(t, f.capture.frames)
	close(f.tasks)
	f.exit(t)
}

func TestWorkerOutcomes(t *testing.T) {
	f := newFixture(t)
	f.register(false)
	go f.worker.Run()

	// radiotap header only
	f.tasks <- f.ring.Write(sniffertest.MinimalRadiotap(), time.Now())
	assert.Equal(t, OutcomeRadiotapOnly, f.report(t).Outcome)

	// radiotap header claims more than was captured
	f.tasks <- f.ring.Write([]byte{0, 0, 32, 0, 0, 0, 0, 0}, time.Now())
	assert.Equal(t, OutcomeEmpty, f.report(t).Outcome)

	recs := f.frames.records()
	require.Len(t, recs, 2)
	assert.True(t, recs[0].RadiotapOK)
	assert.False(t, recs[0].MPDUOK)
	assert.NotEmpty(t, recs[1].DecodeErr)
	assert.Zero(t, recs[1].HeaderLen)

	close(f.tasks)
	f.exit(t)
}

func TestWorkerWarnsOnMalformedFrames(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	f.worker = New("w1", f.tasks, f.reports, f.exits, Config{Frames: f.frames, Logger: logger})
	f.register(false)
	go f.worker.Run()

	f.tasks <- f.ring.Write(beacon(), time.Now())
	assert.Equal(t, OutcomeFull, f.report(t).Outcome)
	assert.Empty(t, logs.String())

	f.tasks <- f.ring.Write(sniffertest.MinimalRadiotap(), time.Now())
	f.report(t)
	f.tasks <- f.ring.Write([]byte{0, 0, 32, 0, 0, 0, 0, 0}, time.Now())
	f.report(t)

	out := logs.String()
	assert.Contains(t, out, `level=WARN msg="Malformed MPDU" component=thresher worker=w1 radio=pri`)
	assert.Contains(t, out, `level=WARN msg="Malformed radiotap header"`)

	close(f.tasks)
	f.exit(t)
}

func TestWorkerDropsStaleSlot(t *testing.T) {
	f := newFixture(t)
	f.register(false)

	old := f.ring.Write(beacon(), time.Now())
	for i := 0; i < f.ring.Slots(); i++ {
		f.ring.Write(beacon(), time.Now())
	}
	go f.worker.Run()
	f.tasks <- old

	assert.Equal(t, OutcomeStale, f.report(t).Outcome)
	assert.Empty(t, f.frames.records())
	close(f.tasks)
	f.exit(t)
}

func TestWorkerDropsUnregisteredRadio(t *testing.T) {
	f := newFixture(t)
	f.register(false)
	f.worker.Control() <- Unregister{MAC: radioMAC}
	dropped := telemetry.FramesDropped.WithLabelValues(telemetry.UnknownRadio, "unregistered")
	before := testutil.ToFloat64(dropped)
	go f.worker.Run()

	f.tasks <- f.ring.Write(beacon(), time.Now())
	assert.Equal(t, OutcomeUnregistered, f.report(t).Outcome)
	assert.Empty(t, f.frames.records())
	assert.Equal(t, before+1, testutil.ToFloat64(dropped))
	assert.Zero(t, testutil.ToFloat64(telemetry.FramesDropped.WithLabelValues(radioMAC, "unregistered")))
	close(f.tasks)
	f.exit(t)
}

func TestWorkerSinkFullStillReports(t *testing.T) {
	f := newFixture(t)
	f.frames.full = true
	f.register(false)
	go f.worker.Run()

	f.tasks <- f.ring.Write(beacon(), time.Now())
	assert.Equal(t, OutcomeFull, f.report(t).Outcome)
	close(f.tasks)
	f.exit(t)
}

func TestWorkerPoison(t *testing.T) {
	f := newFixture(t)
	go f.worker.Run()
	f.worker.Control() <- Poison{}
	assert.NoError(t, f.exit(t).Err)
}

func TestWorkerPanicRequestsRetirement(t *testing.T) {
	f := newFixture(t)
	f.worker.Control() <- Register{Radio: domain.RadioRecord{MAC: radioMAC, Role: domain.RoleSecondary}, Ring: panicReader{}}
	go f.worker.Run()

	f.tasks <- domain.FrameSlot{Owner: radioMAC, Len: 10, Seq: 1}
	r := f.report(t)
	assert.Equal(t, OutcomeFailed, r.Outcome)

	x := f.exit(t)
	assert.Equal(t, "w1", x.Worker)
	assert.True(t, errors.Is(x.Err, ErrPanic))
}

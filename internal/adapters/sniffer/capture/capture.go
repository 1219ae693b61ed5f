// Package capture owns a radio's capture socket: it drains the radio's
// channel scanner, writes frames into the radio's ring and notifies the
// collator.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/hopping"
	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/ring"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
	"github.com/lcalzada-xor/wsensor/internal/telemetry"
)

// finalNoticeTimeout bounds the radio-down/fail send once the collator may
// already be gone.
const finalNoticeTimeout = time.Second

// Radio is one configured radio: its record, scanner, ring and socket.
type Radio struct {
	Record  domain.RadioRecord
	Scanner *hopping.Scanner
	Ring    *ring.Ring

	ctl    ports.RadioController
	src    ports.PacketSource
	logger *slog.Logger

	// tuning as last reported by the scanner
	state domain.ScanState
	idx   int
}

// Run starts the scanner and captures until ctx is cancelled or the socket
// fails. A socket failure ends this radio only; it is reported as a
// RadioFailNotice and returned.
func (r *Radio) Run(ctx context.Context, out chan<- domain.Notice) error {
	scanCtx, stopScanner := context.WithCancel(ctx)
	scannerDone := make(chan struct{})
	go func() {
		defer close(scannerDone)
		r.Scanner.Run(scanCtx)
	}()
	defer func() {
		stopScanner()
		<-scannerDone
	}()

	mac, role := r.Record.MAC, r.Record.Role
	label := string(role)
	if !r.notify(ctx, out, domain.RadioUpNotice{Radio: r.Record, Ring: r.Ring}) {
		return nil
	}
	r.logger.Info("Capture started")

	for {
		if ctx.Err() != nil {
			r.logger.Info("Capture stopped", "frames", r.Ring.Written(), "clipped", r.Ring.Clipped())
			r.notifyFinal(out, domain.RadioDownNotice{MAC: mac, Role: role})
			return nil
		}

		select {
		case ev := <-r.Scanner.Events():
			r.onScanEvent(ev)
			r.notify(ctx, out, domain.ScannerNotice{MAC: mac, Role: role, Event: ev})
			continue
		default:
		}

		data, ts, err := r.src.ReadPacketData()
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			telemetry.CaptureErrors.WithLabelValues(label).Inc()
			r.logger.Error("Capture socket failed", "error", err, "frames", r.Ring.Written())
			r.notifyFinal(out, domain.RadioFailNotice{MAC: mac, Role: role, Err: err})
			return err
		}

		telemetry.FramesCaptured.WithLabelValues(label).Inc()
		telemetry.BytesCaptured.WithLabelValues(label).Add(float64(len(data)))
		r.Scanner.Tally(r.idx)

		if r.state == domain.StatePause {
			telemetry.FramesDropped.WithLabelValues(label, "paused").Inc()
			continue
		}
		if ts.IsZero() {
			ts = time.Now()
		}
		slot := r.Ring.Write(data, ts)
		r.notify(ctx, out, domain.FrameNotice{Slot: slot})
	}
}

// State returns the tuning state last reported by the scanner. It is only
// meaningful from the capture goroutine.
func (r *Radio) State() domain.ScanState { return r.state }

func (r *Radio) onScanEvent(ev domain.ScanEvent) {
	r.state = ev.State
	switch ev.Kind {
	case domain.EventTuned:
		r.idx = ev.Index
		telemetry.RadioChannel.WithLabelValues(string(r.Record.Role)).Set(float64(ev.Entry.Channel))
	case domain.EventTuneFailed:
		r.logger.Warn("Scanner failed to tune", "entry", ev.Entry.String(), "error", ev.Err)
	}
}

func (r *Radio) notify(ctx context.Context, out chan<- domain.Notice, n domain.Notice) bool {
	select {
	case out <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

// notifyFinal delivers a terminal notice even after cancellation, giving
// up if the collator no longer reads.
func (r *Radio) notifyFinal(out chan<- domain.Notice, n domain.Notice) {
	t := time.NewTimer(finalNoticeTimeout)
	defer t.Stop()
	select {
	case out <- n:
	case <-t.C:
		r.logger.Warn("Collator did not take final notice")
	}
}

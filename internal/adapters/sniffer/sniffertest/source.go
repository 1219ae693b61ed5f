package sniffertest

import (
	"errors"
	"sync"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/capture"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
)

// ErrClosed is returned by a FakeSource read after Close.
var ErrClosed = errors.New("fake source closed")

// FakeSource is a ports.PacketSource fed from Push. Reads wait for at most
// Timeout and then report capture.ErrReadTimeout.
type FakeSource struct {
	Timeout time.Duration

	frames chan []byte
	errs   chan error

	mu     sync.Mutex
	closed bool
}

// NewFakeSource returns a source buffering up to 1024 frames.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Timeout: 5 * time.Millisecond,
		frames:  make(chan []byte, 1024),
		errs:    make(chan error, 1),
	}
}

// Opener returns a capture.SourceOpener that always hands out s.
func (s *FakeSource) Opener() capture.SourceOpener {
	return func(string, int, time.Duration) (ports.PacketSource, error) {
		return s, nil
	}
}

// Push queues a frame for the next read.
func (s *FakeSource) Push(frame []byte) {
	s.frames <- append([]byte(nil), frame...)
}

// Fail makes a pending or the next read return err.
func (s *FakeSource) Fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// Pending returns the number of frames not read yet.
func (s *FakeSource) Pending() int { return len(s.frames) }

func (s *FakeSource) ReadPacketData() ([]byte, time.Time, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, time.Time{}, ErrClosed
	}

	t := time.NewTimer(s.Timeout)
	defer t.Stop()
	select {
	case err := <-s.errs:
		return nil, time.Time{}, err
	case f := <-s.frames:
		return f, time.Now(), nil
	case <-t.C:
		return nil, time.Time{}, capture.ErrReadTimeout
	}
}

func (s *FakeSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close was called.
func (s *FakeSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

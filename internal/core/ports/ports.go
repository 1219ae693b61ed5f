package ports

import (
	"context"
	"errors"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// RadioController performs the synchronous radio-control operations needed
// to bring a radio into monitor mode and tune it.
type RadioController interface {
	// Capabilities returns the interface's phy and its usable channels.
	Capabilities(iface string) (phy string, channels []int, err error)
	HWAddr(iface string) (string, error)
	// DriverInfo returns the kernel driver and a chipset description, empty
	// when unknown.
	DriverInfo(iface string) (driver, chipset string)
	Standards(phy string) string
	CreateMonitor(phy, name string) error
	DeleteInterface(iface string) error
	Up(iface string) error
	Down(iface string) error
	SetChannel(iface string, entry domain.ScanEntry) error
	RegDomain() (string, error)
	SetRegDomain(code string) error
	SpoofMAC(iface, mac string) error
}

// PacketSource is a monitor-mode capture socket.
type PacketSource interface {
	// ReadPacketData blocks for at most the source's read timeout. An
	// expired timeout is reported as ErrReadTimeout from the capture package.
	ReadPacketData() ([]byte, time.Time, error)
	Close()
}

// Sink is the persistence collaborator. Calls are keyed by session id and
// are never retried by the caller.
type Sink interface {
	SensorUp(ctx context.Context, s domain.Session) error
	SensorDown(ctx context.Context, session string, at time.Time) error
	RadioUp(ctx context.Context, session string, r domain.RadioRecord) error
	RadioDown(ctx context.Context, session, mac string, at time.Time) error
	Antenna(ctx context.Context, session, mac string, a domain.Antenna) error
	Frames(ctx context.Context, recs []domain.FrameRecord) error
	Location(ctx context.Context, session string, fix domain.Location) error
	Close() error
}

// IsFatal reports whether a sink error is unrecoverable. Sink adapters mark
// such errors with an IsFatal method; any other error is recoverable.
func IsFatal(err error) bool {
	var f interface{ IsFatal() bool }
	return errors.As(err, &f) && f.IsFatal()
}

// FrameSubmitter accepts decoded frames for asynchronous persistence.
type FrameSubmitter interface {
	Submit(rec domain.FrameRecord) bool
}

// CaptureWriter stores raw frames in capture files.
type CaptureWriter interface {
	WriteFrame(ts time.Time, data []byte) error
	Close() error
}

// CommandResponder receives scanner answers to control commands.
type CommandResponder interface {
	Respond(radio domain.Role, ev domain.ScanEvent)
}

// EventPublisher fans out pipeline events.
type EventPublisher interface {
	Publish(ev domain.Event)
}

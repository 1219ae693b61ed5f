package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ErrReadTimeout is returned by a PacketSource when no frame arrived within
// its read timeout.
var ErrReadTimeout = errors.New("capture read timeout")

// DefaultReadTimeout bounds each socket read so scanner events are drained
// promptly.
const DefaultReadTimeout = 100 * time.Millisecond

// PcapSource reads radiotap-framed 802.11 frames from a monitor interface.
type PcapSource struct {
	handle *pcap.Handle
}

// OpenPcap opens iface for live capture. The interface must deliver
// radiotap headers.
func OpenPcap(iface string, snaplen int, timeout time.Duration) (*PcapSource, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	inactive, err := pcap.NewInactiveHandle(iface)
	if err != nil {
		return nil, err
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(snaplen); err != nil {
		return nil, err
	}
	if err := inactive.SetPromisc(true); err != nil {
		return nil, err
	}
	if err := inactive.SetTimeout(timeout); err != nil {
		return nil, err
	}
	if err := inactive.SetImmediateMode(true); err != nil {
		return nil, err
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, err
	}
	if lt := handle.LinkType(); lt != layers.LinkTypeIEEE80211Radio {
		handle.Close()
		return nil, fmt.Errorf("%s: link type %s is not radiotap", iface, lt)
	}
	return &PcapSource{handle: handle}, nil
}

// ReadPacketData returns the next frame. The slice is only valid until the
// next call.
func (s *PcapSource) ReadPacketData() ([]byte, time.Time, error) {
	data, ci, err := s.handle.ZeroCopyReadPacketData()
	if err != nil {
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			return nil, time.Time{}, ErrReadTimeout
		}
		return nil, time.Time{}, err
	}
	return data, ci.Timestamp, nil
}

// Close releases the capture handle.
func (s *PcapSource) Close() {
	s.handle.Close()
}

package sniffertest

import (
	"encoding/binary"
	"net"
)

// Radiotap returns a radiotap header carrying flags, rate, channel and
// antenna signal. fcs sets the "FCS at end" flag.
func Radiotap(freq uint16, signal int8, fcs bool) []byte {
	b := make([]byte, 15)
	binary.LittleEndian.PutUint16(b[2:4], 15)
	binary.LittleEndian.PutUint32(b[4:8], 1<<1|1<<2|1<<3|1<<5)
	if fcs {
		b[8] = 0x10
	}
	b[9] = 0x0c // 6 Mbps
	binary.LittleEndian.PutUint16(b[10:12], freq)
	binary.LittleEndian.PutUint16(b[12:14], 0x00a0)
	b[14] = byte(signal)
	return b
}

// MinimalRadiotap is an 8 byte header with no fields.
func MinimalRadiotap() []byte {
	return []byte{0, 0, 8, 0, 0, 0, 0, 0}
}

// Beacon builds a beacon from bssid announcing ssid on channel.
func Beacon(bssid net.HardwareAddr, ssid string, channel byte, seq uint16) []byte {
	b := []byte{0x80, 0x00, 0x00, 0x00}
	b = append(b, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	b = append(b, bssid...)
	b = append(b, bssid...)
	b = binary.LittleEndian.AppendUint16(b, seq<<4)
	b = append(b, make([]byte, 8)...)    // timestamp
	b = append(b, 0x64, 0x00, 0x11, 0x04) // interval, capabilities
	b = append(b, 0, byte(len(ssid)))
	b = append(b, ssid...)
	b = append(b, 1, 4, 0x82, 0x84, 0x8b, 0x96)
	b = append(b, 3, 1, channel)
	return b
}

// QoSData builds a to-DS QoS data frame with the given TID and payload.
func QoSData(sta, bssid net.HardwareAddr, tid uint8, payload []byte) []byte {
	b := []byte{0x88, 0x01, 0x2c, 0x00}
	b = append(b, bssid...)
	b = append(b, sta...)
	b = append(b, bssid...)
	b = append(b, 0x10, 0x00)
	b = append(b, tid&0x0f, 0x00)
	return append(b, payload...)
}

// WithFCS appends a dummy frame check sequence.
func WithFCS(frame []byte) []byte {
	return append(frame, 0xde, 0xad, 0xbe, 0xef)
}

// Frame concatenates parts into one captured frame.
func Frame(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

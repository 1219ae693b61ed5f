package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidMAC(t *testing.T) {
	tests := []struct {
		mac   string
		valid bool
	}{
		{"00:c0:ca:00:00:01", true},
		{"00:C0:CA:00:00:01", true},
		{"00-c0-ca-00-00-01", true},
		{"00:c0:ca:00:00", false},
		{"00:c0:ca:00:00:01:02", false},
		{"00:c0:ca:00:00:zz", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidMAC(tt.mac), tt.mac)
	}
}

func TestIsValidInterface(t *testing.T) {
	tests := []struct {
		iface string
		valid bool
	}{
		{"wlan0", true},
		{"wlan0mon", true},
		{"wlp3s0", true},
		{"wlan0.100", true},
		{"wlx00c0ca000001m", false}, // 16 chars, over IFNAMSIZ
		{"wlan0;rm", false},
		{"wlan 0", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidInterface(tt.iface), tt.iface)
	}
}

func TestNormalizeMAC(t *testing.T) {
	assert.Equal(t, "00:c0:ca:ab:cd:ef", NormalizeMAC("00-C0-CA-AB-CD-EF"))
	assert.Equal(t, "00:c0:ca:ab:cd:ef", NormalizeMAC("00:c0:ca:ab:cd:ef"))
}

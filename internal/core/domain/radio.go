package domain

import (
	"errors"
	"time"
)

// WiFiBand represents a typed string for frequency bands.
type WiFiBand string

const (
	Band24GHz WiFiBand = "2.4GHz"
	Band5GHz  WiFiBand = "5GHz"
)

// Domain errors for radios.
var (
	ErrInvalidInterfaceName = errors.New("invalid interface name")
	ErrInvalidMAC           = errors.New("invalid MAC address")
	ErrEmptyScanList        = errors.New("empty scan pattern")
)

// Role distinguishes the mandatory radio from the optional one.
type Role string

const (
	RolePrimary   Role = "pri"
	RoleSecondary Role = "sec"
)

// Antenna describes the antenna configuration reported for a radio.
type Antenna struct {
	Count int     `json:"count"`
	Gain  float64 `json:"gain"`
	Type  string  `json:"type"`
	Loss  float64 `json:"loss"`
	XYZ   string  `json:"xyz"`
}

// RadioRecord is the metadata kept for one active radio.
type RadioRecord struct {
	MAC       string      `json:"mac"`
	Role      Role        `json:"role"`
	Phy       string      `json:"phy"`
	NIC       string      `json:"nic"`
	VNIC      string      `json:"vnic"`
	Driver    string      `json:"driver"`
	Chipset   string      `json:"chipset"`
	Standards string      `json:"standards"`
	Channels  []int       `json:"channels"`
	Antenna   Antenna     `json:"antenna"`
	Spoofed   bool        `json:"spoofed"`
	Record    bool        `json:"record"`
	Up        time.Time   `json:"up"`
	ScanList  []ScanEntry `json:"scan_list"`
}

// NewRadioRecord validates the identity fields of a radio record.
func NewRadioRecord(mac string, role Role, vnic string) (*RadioRecord, error) {
	if !IsValidMAC(mac) {
		return nil, ErrInvalidMAC
	}
	if !IsValidInterface(vnic) {
		return nil, ErrInvalidInterfaceName
	}
	return &RadioRecord{MAC: mac, Role: role, VNIC: vnic, Up: time.Now()}, nil
}

// Bands returns the distinct bands covered by the capability channel list.
func (r *RadioRecord) Bands() []WiFiBand {
	seen := make(map[WiFiBand]bool)
	var out []WiFiBand
	for _, ch := range r.Channels {
		b := BandOf(ch)
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

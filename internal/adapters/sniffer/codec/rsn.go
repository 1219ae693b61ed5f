package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrShortRSN is returned for RSN elements without a version field.
var ErrShortRSN = errors.New("rsn element too short")

// RSNInfo is the parsed RSN element (id 48).
type RSNInfo struct {
	Version         uint16
	GroupCipher     string
	PairwiseCiphers []string
	AKMSuites       []string
	Capabilities    uint16
}

// MFPRequired reports the management frame protection required bit.
func (r *RSNInfo) MFPRequired() bool { return r.Capabilities&0x0040 != 0 }

// MFPCapable reports the management frame protection capable bit.
func (r *RSNInfo) MFPCapable() bool { return r.Capabilities&0x0080 != 0 }

// String summarizes the element as pairwise/akm, e.g. "CCMP/PSK+SAE".
func (r *RSNInfo) String() string {
	s := strings.Join(r.PairwiseCiphers, "+") + "/" + strings.Join(r.AKMSuites, "+")
	if r.MFPRequired() {
		s += "/MFP"
	}
	return s
}

var cipherNames = map[uint8]string{
	1:  "WEP-40",
	2:  "TKIP",
	4:  "CCMP",
	5:  "WEP-104",
	8:  "GCMP-128",
	9:  "GCMP-256",
	10: "CCMP-256",
}

var akmNames = map[uint8]string{
	1:  "802.1X",
	2:  "PSK",
	3:  "FT-802.1X",
	4:  "FT-PSK",
	5:  "802.1X-SHA256",
	6:  "PSK-SHA256",
	8:  "SAE",
	9:  "FT-SAE",
	18: "OWE",
}

// ParseRSN decodes an RSN element payload. Optional trailing fields that
// are cut short are left empty.
func ParseRSN(data []byte) (*RSNInfo, error) {
	if len(data) < 2 {
		return nil, ErrShortRSN
	}
	le := binary.LittleEndian
	rsn := &RSNInfo{Version: le.Uint16(data)}
	r := &reader{buf: data, off: 2}

	if s := r.take(4); s != nil {
		rsn.GroupCipher = suiteName(s, cipherNames)
	}
	if n, ok := r.u16(); ok {
		for i := 0; i < int(n); i++ {
			s := r.take(4)
			if s == nil {
				break
			}
			rsn.PairwiseCiphers = append(rsn.PairwiseCiphers, suiteName(s, cipherNames))
		}
	}
	if n, ok := r.u16(); ok {
		for i := 0; i < int(n); i++ {
			s := r.take(4)
			if s == nil {
				break
			}
			rsn.AKMSuites = append(rsn.AKMSuites, suiteName(s, akmNames))
		}
	}
	if c, ok := r.u16(); ok {
		rsn.Capabilities = c
	}
	return rsn, nil
}

func suiteName(s []byte, names map[uint8]string) string {
	if name, ok := names[s[3]]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", s[3])
}

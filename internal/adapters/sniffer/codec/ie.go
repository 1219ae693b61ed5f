package codec

import (
	"fmt"

	"github.com/google/gopacket/layers"
)

// InfoElement is one (id, length, payload) element of a management body.
// Vendor-specific elements are split into OUI and the remainder; rate
// elements are expanded into Mbps values.
type InfoElement struct {
	ID    layers.Dot11InformationElementID
	Data  []byte
	OUI   []byte
	Rates []Rate
}

// Rate is one entry of a supported or extended rates element.
type Rate struct {
	Mbps  float64
	Basic bool
}

// Len returns the payload length as it appeared on the wire.
func (e InfoElement) Len() int {
	return len(e.OUI) + len(e.Data)
}

// Name returns the element name known to gopacket.
func (e InfoElement) Name() string {
	return e.ID.String()
}

// OUIString formats the vendor OUI as xx:xx:xx.
func (e InfoElement) OUIString() string {
	if len(e.OUI) != 3 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x", e.OUI[0], e.OUI[1], e.OUI[2])
}

// ParseElements walks a sequence of information elements. It stops at the
// first element whose declared length overruns the buffer and reports the
// elements decoded so far with truncated set.
func ParseElements(b []byte) (elems []InfoElement, truncated bool) {
	off := 0
	for off < len(b) {
		if off+2 > len(b) {
			return elems, true
		}
		id := layers.Dot11InformationElementID(b[off])
		n := int(b[off+1])
		off += 2
		if off+n > len(b) {
			return elems, true
		}
		elems = append(elems, newElement(id, b[off:off+n]))
		off += n
	}
	return elems, false
}

func newElement(id layers.Dot11InformationElementID, data []byte) InfoElement {
	e := InfoElement{ID: id, Data: data}
	switch id {
	case layers.Dot11InformationElementIDVendor:
		if len(data) >= 3 {
			e.OUI, e.Data = data[:3], data[3:]
		}
	case layers.Dot11InformationElementIDRates, layers.Dot11InformationElementIDESRates:
		e.Rates = make([]Rate, 0, len(data))
		for _, v := range data {
			e.Rates = append(e.Rates, Rate{Mbps: float64(v&0x7f) / 2, Basic: v&0x80 != 0})
		}
	}
	return e
}

// FindElement returns the first element with the given id.
func FindElement(elems []InfoElement, id layers.Dot11InformationElementID) (InfoElement, bool) {
	for _, e := range elems {
		if e.ID == id {
			return e, true
		}
	}
	return InfoElement{}, false
}

// SSID returns the network name and whether it is hidden (absent, empty or
// all zero bytes).
func SSID(elems []InfoElement) (string, bool) {
	e, ok := FindElement(elems, layers.Dot11InformationElementIDSSID)
	if !ok || len(e.Data) == 0 {
		return "", true
	}
	for _, c := range e.Data {
		if c != 0 {
			return safeString(e.Data), false
		}
	}
	return "", true
}

// DSChannel returns the channel announced in the DS parameter set.
func DSChannel(elems []InfoElement) (int, bool) {
	e, ok := FindElement(elems, layers.Dot11InformationElementIDDSSet)
	if !ok || len(e.Data) < 1 {
		return 0, false
	}
	return int(e.Data[0]), true
}

func safeString(b []byte) string {
	out := make([]rune, 0, len(b))
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			out = append(out, '.')
			continue
		}
		out = append(out, rune(c))
	}
	return string(out)
}

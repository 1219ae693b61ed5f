package codec

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket/layers"
)

const (
	fcsLen        = 4
	mandatoryLen  = 10 // frame control + duration + address 1
	seqCtrlLen    = 2
	htControlLen  = 4
	qosControlLen = 2
)

// Management subtypes.
const (
	mgmtAssocReq    = 0
	mgmtAssocResp   = 1
	mgmtReassocReq  = 2
	mgmtReassocResp = 3
	mgmtProbeReq    = 4
	mgmtProbeResp   = 5
	mgmtTimingAdv   = 6
	mgmtBeacon      = 8
	mgmtATIM        = 9
	mgmtDisassoc    = 10
	mgmtAuth        = 11
	mgmtDeauth      = 12
	mgmtAction      = 13
	mgmtActionNoAck = 14
)

// Control subtypes.
const (
	ctrlWrapper  = 7
	ctrlBAR      = 8
	ctrlBA       = 9
	ctrlPSPoll   = 10
	ctrlRTS      = 11
	ctrlCTS      = 12
	ctrlACK      = 13
	ctrlCFEnd    = 14
	ctrlCFEndAck = 15
)

// SeqCtrl is the sequence-control field split into its two numbers.
type SeqCtrl struct {
	FragNo uint8  // 4 bits
	SeqNo  uint16 // 12 bits
}

// ParseSeqCtrl splits a raw sequence-control value.
func ParseSeqCtrl(v uint16) SeqCtrl {
	return SeqCtrl{FragNo: uint8(v & 0x000f), SeqNo: v >> 4}
}

// Uint16 packs the sequence-control value back into its wire form.
func (s SeqCtrl) Uint16() uint16 {
	return (s.SeqNo&0x0fff)<<4 | uint16(s.FragNo&0x0f)
}

// QoSControl is the QoS-control field of QoS data frames.
type QoSControl struct {
	TID       uint8
	EOSP      bool
	AckPolicy uint8
	AMSDU     bool
	TXOP      uint8 // TXOP limit, queue size or mesh bits depending on sender
}

// ParseQoSControl splits a raw QoS-control value.
func ParseQoSControl(v uint16) QoSControl {
	return QoSControl{
		TID:       uint8(v & 0x000f),
		EOSP:      v&0x0010 != 0,
		AckPolicy: uint8(v>>5) & 0x03,
		AMSDU:     v&0x0080 != 0,
		TXOP:      uint8(v >> 8),
	}
}

// MPDU is a decoded 802.11 frame. Address fields beyond Addr1 are nil when
// the frame type does not carry them or the frame ended before them.
type MPDU struct {
	Version   uint8
	Type      layers.Dot11Type
	Flags     layers.Dot11Flags
	Duration  uint16
	Addr1     net.HardwareAddr
	Addr2     net.HardwareAddr
	Addr3     net.HardwareAddr
	Addr4     net.HardwareAddr
	SeqCtrl   *SeqCtrl
	QoS       *QoSControl
	HTControl *uint32

	Fixed    FixedParams
	BlockAck *BlockAck
	Elements []InfoElement

	HeaderLen int
	Body      []byte
	FCS       []byte

	// Truncated is set when the frame ended inside an optional region.
	Truncated bool
}

// MainType returns management, control, data or reserved.
func (m *MPDU) MainType() layers.Dot11Type {
	return m.Type.MainType()
}

// Subtype returns the 4-bit subtype.
func (m *MPDU) Subtype() uint8 {
	return uint8(m.Type) >> 2
}

// ParseMPDU decodes the frame that follows the radiotap header. When hasFCS
// is set the trailing four bytes are split off as the FCS first. Only frame
// control, duration and address 1 are mandatory; a frame cut short after
// them decodes with Truncated set.
func ParseMPDU(b []byte, hasFCS bool) (*MPDU, error) {
	m := &MPDU{}
	if hasFCS {
		if len(b) < fcsLen {
			return nil, &MPDUError{Field: "fcs", Need: fcsLen, Have: len(b)}
		}
		m.FCS = b[len(b)-fcsLen:]
		b = b[:len(b)-fcsLen]
	}

	switch {
	case len(b) < 2:
		return nil, &MPDUError{Field: "frame control", Need: 2, Have: len(b)}
	case len(b) < 4:
		return nil, &MPDUError{Field: "duration", Need: 4, Have: len(b)}
	case len(b) < mandatoryLen:
		return nil, &MPDUError{Field: "address 1", Need: mandatoryLen, Have: len(b)}
	}

	m.Version = b[0] & 0x03
	m.Type = layers.Dot11Type(b[0] >> 2)
	m.Flags = layers.Dot11Flags(b[1])
	m.Duration = binary.LittleEndian.Uint16(b[2:4])
	m.Addr1 = net.HardwareAddr(b[4:10])

	r := &reader{buf: b, off: mandatoryLen}
	switch m.MainType() {
	case layers.Dot11TypeMgmt:
		m.parseMgmt(r)
	case layers.Dot11TypeCtrl:
		m.parseCtrl(r)
	case layers.Dot11TypeData:
		m.parseData(r)
	default:
		m.HeaderLen = r.off
	}
	m.Body = b[m.HeaderLen:]
	m.Truncated = m.Truncated || r.short
	return m, nil
}

// readMACHeader reads addr2, addr3 and sequence control, shared by
// management and data frames.
func (m *MPDU) readMACHeader(r *reader) bool {
	if m.Addr2 = r.addr(); m.Addr2 == nil {
		return false
	}
	if m.Addr3 = r.addr(); m.Addr3 == nil {
		return false
	}
	v, ok := r.u16()
	if !ok {
		return false
	}
	sc := ParseSeqCtrl(v)
	m.SeqCtrl = &sc
	return true
}

func (m *MPDU) readHTControl(r *reader) bool {
	v, ok := r.u32()
	if !ok {
		return false
	}
	m.HTControl = &v
	return true
}

func (m *MPDU) parseMgmt(r *reader) {
	if !m.readMACHeader(r) {
		m.HeaderLen = r.off
		return
	}
	if m.Flags.Order() && !m.readHTControl(r) {
		m.HeaderLen = r.off
		return
	}
	m.HeaderLen = r.off

	sub := m.Subtype()
	body := r.sub()
	fixed, ok := readFixedParams(sub, body)
	if !ok {
		m.Truncated = true
		return
	}
	m.Fixed = fixed

	switch sub {
	case mgmtAssocReq, mgmtAssocResp, mgmtReassocReq, mgmtReassocResp,
		mgmtProbeReq, mgmtProbeResp, mgmtBeacon, mgmtAuth,
		mgmtDisassoc, mgmtDeauth:
		var short bool
		m.Elements, short = ParseElements(body.peekRest())
		m.Truncated = m.Truncated || short
	}
}

func (m *MPDU) parseCtrl(r *reader) {
	defer func() { m.HeaderLen = r.off }()
	switch m.Subtype() {
	case ctrlRTS, ctrlPSPoll, ctrlCFEnd, ctrlCFEndAck:
		m.Addr2 = r.addr()
	case ctrlBAR, ctrlBA:
		if m.Addr2 = r.addr(); m.Addr2 == nil {
			return
		}
		sub := r.sub()
		m.BlockAck = readBlockAck(sub, m.Subtype() == ctrlBA)
		m.Truncated = m.Truncated || sub.short
	case ctrlCTS, ctrlACK:
		// receiver address only
	}
}

func (m *MPDU) parseData(r *reader) {
	if !m.readMACHeader(r) {
		m.HeaderLen = r.off
		return
	}
	if m.Flags.ToDS() && m.Flags.FromDS() {
		if m.Addr4 = r.addr(); m.Addr4 == nil {
			m.HeaderLen = r.off
			return
		}
	}
	if m.Subtype()&0x08 != 0 {
		v, ok := r.u16()
		if !ok {
			m.HeaderLen = r.off
			return
		}
		qos := ParseQoSControl(v)
		m.QoS = &qos
		if m.Flags.Order() {
			m.readHTControl(r)
		}
	}
	m.HeaderLen = r.off
}

// reader is a bounds-checked cursor. A failed read marks it short and
// leaves the offset unchanged.
type reader struct {
	buf   []byte
	off   int
	short bool
}

func (r *reader) take(n int) []byte {
	if r.short || r.off+n > len(r.buf) {
		r.short = true
		return nil
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}

func (r *reader) u8() (uint8, bool) {
	v := r.take(1)
	if v == nil {
		return 0, false
	}
	return v[0], true
}

func (r *reader) u16() (uint16, bool) {
	v := r.take(2)
	if v == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint16(v), true
}

func (r *reader) u32() (uint32, bool) {
	v := r.take(4)
	if v == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v), true
}

func (r *reader) u64() (uint64, bool) {
	v := r.take(8)
	if v == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint64(v), true
}

func (r *reader) addr() net.HardwareAddr {
	v := r.take(6)
	if v == nil {
		return nil
	}
	return net.HardwareAddr(v)
}

func (r *reader) peekRest() []byte {
	return r.buf[r.off:]
}

// sub returns a reader over the unread bytes, so that body fields can be
// read without moving the header offset.
func (r *reader) sub() *reader {
	return &reader{buf: r.buf[r.off:]}
}

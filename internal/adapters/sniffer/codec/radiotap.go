package codec

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// Field is the bit number of a field in the default radiotap namespace.
type Field uint

const (
	FieldTSFT Field = iota
	FieldFlags
	FieldRate
	FieldChannel
	FieldFHSS
	FieldAntSignal
	FieldAntNoise
	FieldLockQuality
	FieldTxAttenuation
	FieldDBTxAttenuation
	FieldTxPower
	FieldAntenna
	FieldDBAntSignal
	FieldDBAntNoise
	FieldRxFlags
	FieldTxFlags
	FieldRTSRetries
	FieldDataRetries
	FieldXChannel
	FieldMCS
	FieldAMPDU
	FieldVHT
	FieldTimestamp

	fieldRadiotapNS Field = 29
	fieldVendorNS   Field = 30
	fieldExt        Field = 31
)

const radiotapMinLen = 8

// Alignment and size of each default namespace field. Fields past the end
// of this table have no known size, so decoding stops at the first of them.
var fieldLayout = [...]struct{ align, size int }{
	FieldTSFT:            {8, 8},
	FieldFlags:           {1, 1},
	FieldRate:            {1, 1},
	FieldChannel:         {2, 4},
	FieldFHSS:            {1, 2},
	FieldAntSignal:       {1, 1},
	FieldAntNoise:        {1, 1},
	FieldLockQuality:     {2, 2},
	FieldTxAttenuation:   {2, 2},
	FieldDBTxAttenuation: {2, 2},
	FieldTxPower:         {1, 1},
	FieldAntenna:         {1, 1},
	FieldDBAntSignal:     {1, 1},
	FieldDBAntNoise:      {1, 1},
	FieldRxFlags:         {2, 2},
	FieldTxFlags:         {2, 2},
	FieldRTSRetries:      {1, 1},
	FieldDataRetries:     {1, 1},
	FieldXChannel:        {4, 8},
	FieldMCS:             {1, 3},
	FieldAMPDU:           {4, 8},
	FieldVHT:             {2, 12},
	FieldTimestamp:       {8, 12},
}

// XChannel is the extended channel field.
type XChannel struct {
	Flags    uint32
	Freq     uint16
	Channel  uint8
	MaxPower uint8
}

// MCS describes an HT transmission.
type MCS struct {
	Known uint8
	Flags uint8
	Index uint8
}

// AMPDUStatus identifies the A-MPDU a frame was received in.
type AMPDUStatus struct {
	Reference uint32
	Flags     uint16
	CRC       uint8
}

// VHT describes a VHT transmission.
type VHT struct {
	Known      uint16
	Flags      uint8
	Bandwidth  uint8
	MCSNSS     [4]uint8
	Coding     uint8
	GroupID    uint8
	PartialAID uint16
}

// Timestamp is the radiotap timestamp field.
type Timestamp struct {
	Value        uint64
	Accuracy     uint16
	UnitPosition uint8
	Flags        uint8
}

// Radiotap is a decoded radiotap header. Only fields flagged in the first
// present word are populated; check Has before reading a field.
type Radiotap struct {
	Version uint8
	Length  uint16
	Present []layers.RadioTapPresent

	TSFT            uint64
	Flags           layers.RadioTapFlags
	Rate            uint8 // 500 kbps units
	ChannelFreq     uint16
	ChannelFlags    layers.RadioTapChannelFlags
	FHSSHopSet      uint8
	FHSSPattern     uint8
	AntSignal       int8 // dBm
	AntNoise        int8 // dBm
	LockQuality     uint16
	TxAttenuation   uint16
	DBTxAttenuation uint16
	TxPower         int8
	Antenna         uint8
	DBAntSignal     uint8
	DBAntNoise      uint8
	RxFlags         uint16
	TxFlags         uint16
	RTSRetries      uint8
	DataRetries     uint8
	XChannel        XChannel
	MCS             MCS
	AMPDU           AMPDUStatus
	VHT             VHT
	Timestamp       Timestamp
}

// Has reports whether f was present in the default namespace.
func (r *Radiotap) Has(f Field) bool {
	if len(r.Present) == 0 || f > fieldExt {
		return false
	}
	return uint32(r.Present[0])&(1<<f) != 0
}

// HasFCS reports whether the captured frame carries a trailing FCS.
func (r *Radiotap) HasFCS() bool {
	return r.Has(FieldFlags) && r.Flags.FCS()
}

// BadFCS reports whether the driver flagged the FCS as failed.
func (r *Radiotap) BadFCS() bool {
	return r.Has(FieldFlags) && r.Flags.BadFCS()
}

// RateMbps returns the legacy rate in Mbps, 0 when absent.
func (r *Radiotap) RateMbps() float64 {
	if !r.Has(FieldRate) {
		return 0
	}
	return float64(r.Rate) / 2
}

// Channel returns the channel number derived from the channel frequency.
func (r *Radiotap) Channel() int {
	if r.Has(FieldChannel) {
		return FrequencyToChannel(int(r.ChannelFreq))
	}
	if r.Has(FieldXChannel) {
		return int(r.XChannel.Channel)
	}
	return 0
}

// ParseRadiotap decodes the radiotap header at the start of b and returns
// it with the number of bytes it occupies.
func ParseRadiotap(b []byte) (*Radiotap, int, error) {
	if len(b) < radiotapMinLen {
		return nil, 0, radiotapErr(0, "buffer of %d bytes shorter than fixed header", len(b))
	}

	r := &Radiotap{
		Version: b[0],
		Length:  binary.LittleEndian.Uint16(b[2:4]),
	}
	if r.Version != 0 {
		return nil, 0, radiotapErr(0, "unsupported version %d", r.Version)
	}

	hlen := int(r.Length)
	if hlen < radiotapMinLen {
		return nil, 0, radiotapErr(2, "declared length %d below minimum", hlen)
	}
	if hlen > len(b) {
		return nil, 0, radiotapErr(2, "declared length %d exceeds buffer of %d bytes", hlen, len(b))
	}
	hdr := b[:hlen]

	off := 4
	for {
		if off+4 > hlen {
			return nil, 0, radiotapErr(off, "present bitmask overruns declared length %d", hlen)
		}
		word := binary.LittleEndian.Uint32(hdr[off : off+4])
		r.Present = append(r.Present, layers.RadioTapPresent(word))
		off += 4
		if word&(1<<fieldExt) == 0 {
			break
		}
	}

	first := uint32(r.Present[0])
	for f := FieldTSFT; f < fieldRadiotapNS; f++ {
		if first&(1<<f) == 0 {
			continue
		}
		if int(f) >= len(fieldLayout) {
			// size unknown, the rest of the namespace is unreachable
			break
		}
		lay := fieldLayout[f]
		off = alignUp(off, lay.align)
		if off+lay.size > hlen {
			return nil, 0, radiotapErr(off, "field %d overruns declared length %d", f, hlen)
		}
		r.decodeField(f, hdr[off:off+lay.size])
		off += lay.size
	}

	return r, hlen, nil
}

func alignUp(off, align int) int {
	if rem := off % align; rem != 0 {
		return off + align - rem
	}
	return off
}

func (r *Radiotap) decodeField(f Field, v []byte) {
	le := binary.LittleEndian
	switch f {
	case FieldTSFT:
		r.TSFT = le.Uint64(v)
	case FieldFlags:
		r.Flags = layers.RadioTapFlags(v[0])
	case FieldRate:
		r.Rate = v[0]
	case FieldChannel:
		r.ChannelFreq = le.Uint16(v[0:2])
		r.ChannelFlags = layers.RadioTapChannelFlags(le.Uint16(v[2:4]))
	case FieldFHSS:
		r.FHSSHopSet, r.FHSSPattern = v[0], v[1]
	case FieldAntSignal:
		r.AntSignal = int8(v[0])
	case FieldAntNoise:
		r.AntNoise = int8(v[0])
	case FieldLockQuality:
		r.LockQuality = le.Uint16(v)
	case FieldTxAttenuation:
		r.TxAttenuation = le.Uint16(v)
	case FieldDBTxAttenuation:
		r.DBTxAttenuation = le.Uint16(v)
	case FieldTxPower:
		r.TxPower = int8(v[0])
	case FieldAntenna:
		r.Antenna = v[0]
	case FieldDBAntSignal:
		r.DBAntSignal = v[0]
	case FieldDBAntNoise:
		r.DBAntNoise = v[0]
	case FieldRxFlags:
		r.RxFlags = le.Uint16(v)
	case FieldTxFlags:
		r.TxFlags = le.Uint16(v)
	case FieldRTSRetries:
		r.RTSRetries = v[0]
	case FieldDataRetries:
		r.DataRetries = v[0]
	case FieldXChannel:
		r.XChannel = XChannel{
			Flags:    le.Uint32(v[0:4]),
			Freq:     le.Uint16(v[4:6]),
			Channel:  v[6],
			MaxPower: v[7],
		}
	case FieldMCS:
		r.MCS = MCS{Known: v[0], Flags: v[1], Index: v[2]}
	case FieldAMPDU:
		r.AMPDU = AMPDUStatus{
			Reference: le.Uint32(v[0:4]),
			Flags:     le.Uint16(v[4:6]),
			CRC:       v[6],
		}
	case FieldVHT:
		r.VHT = VHT{
			Known:      le.Uint16(v[0:2]),
			Flags:      v[2],
			Bandwidth:  v[3],
			MCSNSS:     [4]uint8{v[4], v[5], v[6], v[7]},
			Coding:     v[8],
			GroupID:    v[9],
			PartialAID: le.Uint16(v[10:12]),
		}
	case FieldTimestamp:
		r.Timestamp = Timestamp{
			Value:        le.Uint64(v[0:8]),
			Accuracy:     le.Uint16(v[8:10]),
			UnitPosition: v[10],
			Flags:        v[11],
		}
	}
}

// FrequencyToChannel converts a center frequency in MHz to an 802.11
// channel number, 0 when the frequency is outside the 2.4/5 GHz plans.
func FrequencyToChannel(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq < 2484:
		return (freq - 2407) / 5
	case freq >= 5000 && freq <= 5900:
		return (freq - 5000) / 5
	}
	return 0
}

// ChannelToFrequency is the inverse of FrequencyToChannel.
func ChannelToFrequency(ch int) int {
	switch {
	case ch == 14:
		return 2484
	case ch >= 1 && ch < 14:
		return 2407 + ch*5
	case ch >= 32 && ch <= 180:
		return 5000 + ch*5
	}
	return 0
}

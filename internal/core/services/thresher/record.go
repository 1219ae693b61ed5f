package thresher

import (
	"net"

	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/codec"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// BuildRecord flattens a decode result into the record stored by the sink.
// A radiotap failure leaves every range at zero; an MPDU failure keeps the
// radiotap fields only.
func BuildRecord(session string, slot domain.FrameSlot, d codec.Decoded) domain.FrameRecord {
	rec := domain.FrameRecord{
		Session: session,
		Radio:   slot.Owner,
		TS:      slot.TS,
		Seq:     slot.Seq,
		Len:     slot.Len,
	}
	rec.HeaderLen, rec.BodyLen, rec.FCSLen = d.Ranges()

	switch v := d.(type) {
	case codec.Full:
		rec.RadiotapOK, rec.MPDUOK = true, true
		fillRadiotap(&rec, v.Radiotap)
		fillMPDU(&rec, v.MPDU)
	case codec.RadiotapOnly:
		rec.RadiotapOK = true
		rec.DecodeErr = v.Err.Error()
		fillRadiotap(&rec, v.Radiotap)
	case codec.Empty:
		rec.DecodeErr = v.Err.Error()
	}
	return rec
}

func fillRadiotap(rec *domain.FrameRecord, rt *codec.Radiotap) {
	if len(rt.Present) > 0 {
		rec.Present = uint32(rt.Present[0])
	}
	rec.RTFlags = uint8(rt.Flags)
	rec.Rate = rt.RateMbps()
	rec.Channel = rt.Channel()
	rec.BadFCS = rt.BadFCS()

	if rt.Has(codec.FieldChannel) {
		rec.Frequency = int(rt.ChannelFreq)
		rec.ChanFlags = uint16(rt.ChannelFlags)
	} else if rt.Has(codec.FieldXChannel) {
		rec.Frequency = int(rt.XChannel.Freq)
	}
	if rt.Has(codec.FieldTSFT) {
		rec.TSFT = ptr(rt.TSFT)
	}
	if rt.Has(codec.FieldAntSignal) {
		rec.AntSignal = ptr(rt.AntSignal)
	}
	if rt.Has(codec.FieldAntNoise) {
		rec.AntNoise = ptr(rt.AntNoise)
	}
	if rt.Has(codec.FieldAntenna) {
		rec.Antenna = ptr(rt.Antenna)
	}
	if rt.Has(codec.FieldMCS) {
		rec.MCSIndex = ptr(rt.MCS.Index)
	}
	if rt.Has(codec.FieldVHT) {
		rec.VHTBand = ptr(rt.VHT.Bandwidth)
	}
}

func fillMPDU(rec *domain.FrameRecord, m *codec.MPDU) {
	rec.FrameType = typeName(m.MainType())
	rec.Subtype = m.Type.String()
	rec.Flags = uint8(m.Flags)
	rec.Duration = m.Duration
	rec.Addr1 = macString(m.Addr1)
	rec.Addr2 = macString(m.Addr2)
	rec.Addr3 = macString(m.Addr3)
	rec.Addr4 = macString(m.Addr4)
	rec.Truncated = m.Truncated

	if m.SeqCtrl != nil {
		rec.FragNo = ptr(m.SeqCtrl.FragNo)
		rec.SeqNo = ptr(m.SeqCtrl.SeqNo)
	}
	if m.QoS != nil {
		rec.TID = ptr(m.QoS.TID)
	}
	if ssid, ok := codec.SSID(m.Elements); ok {
		rec.SSID = ssid
	}
	if ch, ok := codec.DSChannel(m.Elements); ok {
		rec.DSChannel = ch
	}
	if e, ok := codec.FindElement(m.Elements, layers.Dot11InformationElementIDRSNInfo); ok {
		if rsn, err := codec.ParseRSN(e.Data); err == nil {
			rec.Security = rsn.String()
		}
	}
	if capab, ok := codec.Capability(m.Fixed); ok {
		switch {
		case capab&codec.CapESS != 0:
			rec.BSSType = "ess"
		case capab&codec.CapIBSS != 0:
			rec.BSSType = "ibss"
		}
		if rec.Security == "" && capab&codec.CapPrivacy != 0 {
			rec.Security = legacySecurity(m.Elements)
		}
	}
	for _, e := range m.Elements {
		es := domain.ElementSummary{ID: uint8(e.ID), Name: e.Name(), Len: e.Len(), OUI: e.OUIString()}
		for _, r := range e.Rates {
			es.Rates = append(es.Rates, r.Mbps)
		}
		rec.Elements = append(rec.Elements, es)
	}
}

// legacySecurity names a protected network that announces no RSN element.
func legacySecurity(elems []codec.InfoElement) string {
	for _, e := range elems {
		if e.ID == layers.Dot11InformationElementIDVendor && e.OUIString() == "00:50:f2" && len(e.Data) > 0 && e.Data[0] == 1 {
			return "WPA"
		}
	}
	return "WEP"
}

func typeName(t layers.Dot11Type) string {
	switch t {
	case layers.Dot11TypeMgmt:
		return "mgmt"
	case layers.Dot11TypeCtrl:
		return "ctrl"
	case layers.Dot11TypeData:
		return "data"
	}
	return "reserved"
}

func macString(a net.HardwareAddr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func ptr[T any](v T) *T { return &v }

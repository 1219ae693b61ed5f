package codec

import "net"

// FixedParams is the subtype-specific fixed part of a management frame body.
type FixedParams interface {
	fixed()
}

// AssocReq is the fixed part of an association request.
type AssocReq struct {
	Capability     uint16
	ListenInterval uint16
}

// AssocResp is the fixed part of an association or reassociation response.
type AssocResp struct {
	Capability uint16
	Status     uint16
	AID        uint16
}

// ReassocReq is the fixed part of a reassociation request.
type ReassocReq struct {
	Capability     uint16
	ListenInterval uint16
	CurrentAP      net.HardwareAddr
}

// BeaconParams is the fixed part of beacons and probe responses.
type BeaconParams struct {
	Timestamp  uint64
	Interval   uint16 // time units
	Capability uint16
}

// Reason is the fixed part of deauthentication and disassociation frames.
type Reason struct {
	Code uint16
}

// Auth is the fixed part of an authentication frame.
type Auth struct {
	Algorithm uint16
	Sequence  uint16
	Status    uint16
}

// Action is the fixed part of action frames. The rest of the body is
// category specific and left undecoded.
type Action struct {
	Category uint8
	Code     uint8
}

func (AssocReq) fixed()     {}
func (AssocResp) fixed()    {}
func (ReassocReq) fixed()   {}
func (BeaconParams) fixed() {}
func (Reason) fixed()       {}
func (Auth) fixed()         {}
func (Action) fixed()       {}

// Capability bits shared by the fixed parameters.
const (
	CapESS     = 0x0001
	CapIBSS    = 0x0002
	CapPrivacy = 0x0010
)

// Capability returns the capability field of the fixed parameters that
// carry one.
func Capability(f FixedParams) (uint16, bool) {
	switch v := f.(type) {
	case BeaconParams:
		return v.Capability, true
	case AssocReq:
		return v.Capability, true
	case AssocResp:
		return v.Capability, true
	case ReassocReq:
		return v.Capability, true
	}
	return 0, false
}

// readFixedParams returns nil, true for subtypes without fixed fields and
// false when the body ends inside them.
func readFixedParams(sub uint8, r *reader) (FixedParams, bool) {
	switch sub {
	case mgmtAssocReq:
		c, _ := r.u16()
		li, ok := r.u16()
		return AssocReq{Capability: c, ListenInterval: li}, ok
	case mgmtAssocResp, mgmtReassocResp:
		c, _ := r.u16()
		st, _ := r.u16()
		aid, ok := r.u16()
		return AssocResp{Capability: c, Status: st, AID: aid & 0x3fff}, ok
	case mgmtReassocReq:
		c, _ := r.u16()
		li, _ := r.u16()
		ap := r.addr()
		return ReassocReq{Capability: c, ListenInterval: li, CurrentAP: ap}, ap != nil
	case mgmtProbeResp, mgmtBeacon:
		ts, _ := r.u64()
		iv, _ := r.u16()
		c, ok := r.u16()
		return BeaconParams{Timestamp: ts, Interval: iv, Capability: c}, ok
	case mgmtDisassoc, mgmtDeauth:
		code, ok := r.u16()
		return Reason{Code: code}, ok
	case mgmtAuth:
		alg, _ := r.u16()
		seq, _ := r.u16()
		st, ok := r.u16()
		return Auth{Algorithm: alg, Sequence: seq, Status: st}, ok
	case mgmtAction, mgmtActionNoAck:
		cat, _ := r.u8()
		code, ok := r.u8()
		return Action{Category: cat, Code: code}, ok
	}
	return nil, true
}

package codec

// Decoded is the outcome of decoding one captured frame: Full,
// RadiotapOnly or Empty. Partial results are values, not errors.
type Decoded interface {
	// Ranges returns the radiotap+MAC header, body and FCS lengths.
	Ranges() (header, body, fcs int)
}

// Full is a frame whose radiotap header and MPDU both decoded.
type Full struct {
	Radiotap *Radiotap
	MPDU     *MPDU
}

// RadiotapOnly is a frame whose MPDU failed its mandatory fields.
type RadiotapOnly struct {
	Radiotap *Radiotap
	Err      error
}

// Empty is a frame whose radiotap header did not decode.
type Empty struct {
	Err error
}

func (d Full) Ranges() (int, int, int) {
	return int(d.Radiotap.Length) + d.MPDU.HeaderLen, len(d.MPDU.Body), len(d.MPDU.FCS)
}

func (d RadiotapOnly) Ranges() (int, int, int) {
	return int(d.Radiotap.Length), 0, 0
}

func (Empty) Ranges() (int, int, int) {
	return 0, 0, 0
}

// Decode runs the radiotap parser and, when it succeeds, the MPDU parser
// on the bytes that follow it.
func Decode(frame []byte) Decoded {
	rt, n, err := ParseRadiotap(frame)
	if err != nil {
		return Empty{Err: err}
	}
	m, err := ParseMPDU(frame[n:], rt.HasFCS())
	if err != nil {
		return RadiotapOnly{Radiotap: rt, Err: err}
	}
	return Full{Radiotap: rt, MPDU: m}
}

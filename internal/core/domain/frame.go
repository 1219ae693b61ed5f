package domain

import "time"

// FrameSlot locates one captured frame inside a radio's ring.
type FrameSlot struct {
	Owner string // radio MAC
	Index int
	Len   int
	Seq   uint64
	TS    time.Time
}

// FrameRecord is the flattened decode result handed to the sink.
type FrameRecord struct {
	Session string
	Radio   string
	TS      time.Time
	Seq     uint64
	Len     int

	// Layer validity
	RadiotapOK bool
	MPDUOK     bool
	DecodeErr  string

	// Byte ranges inside the raw frame
	HeaderLen int
	BodyLen   int
	FCSLen    int

	// Radiotap summary
	Present   uint32
	RTFlags   uint8
	Rate      float64 // Mbps
	Frequency int
	Channel   int
	ChanFlags uint16
	AntSignal *int8
	AntNoise  *int8
	Antenna   *uint8
	BadFCS    bool
	TSFT      *uint64
	MCSIndex  *uint8
	VHTBand   *uint8

	// MPDU summary
	FrameType string
	Subtype   string
	Flags     uint8
	Duration  uint16
	Addr1     string
	Addr2     string
	Addr3     string
	Addr4     string
	FragNo    *uint8
	SeqNo     *uint16
	TID       *uint8
	Truncated bool
	SSID      string
	DSChannel int    // channel announced in the DS parameter set
	Security  string // RSN summary, "WPA" or "WEP" from the privacy bit
	BSSType   string // "ess" or "ibss" from the capability field
	Elements  []ElementSummary
}

// ElementSummary is a compact view of one information element.
type ElementSummary struct {
	ID    uint8     `json:"id"`
	Name  string    `json:"name"`
	Len   int       `json:"len"`
	OUI   string    `json:"oui,omitempty"`
	Rates []float64 `json:"rates,omitempty"`
}

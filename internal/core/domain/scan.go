package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Width is the channel width a radio is tuned with.
type Width int

const (
	WidthNone Width = iota
	WidthHT20
	WidthHT40Plus
	WidthHT40Minus
)

var ErrInvalidWidth = errors.New("invalid channel width")

func (w Width) String() string {
	switch w {
	case WidthNone:
		return "None"
	case WidthHT20:
		return "HT20"
	case WidthHT40Plus:
		return "HT40+"
	case WidthHT40Minus:
		return "HT40-"
	}
	return "Unknown"
}

// ParseWidth accepts the names printed by String, case insensitive. The empty
// string maps to WidthNone.
func ParseWidth(s string) (Width, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE", "NOHT":
		return WidthNone, nil
	case "HT20":
		return WidthHT20, nil
	case "HT40+":
		return WidthHT40Plus, nil
	case "HT40-":
		return WidthHT40Minus, nil
	}
	return WidthNone, fmt.Errorf("%w: %q", ErrInvalidWidth, s)
}

// ScanEntry is one (channel, width) pair the scanner may tune to.
type ScanEntry struct {
	Channel int   `json:"channel"`
	Width   Width `json:"width"`
}

func (e ScanEntry) String() string {
	return fmt.Sprintf("%d:%s", e.Channel, e.Width)
}

// ParseScanEntry parses "ch" or "ch:width".
func ParseScanEntry(s string) (ScanEntry, error) {
	chStr, widthStr, _ := strings.Cut(strings.TrimSpace(s), ":")
	ch, err := strconv.Atoi(chStr)
	if err != nil || ch <= 0 {
		return ScanEntry{}, fmt.Errorf("invalid channel %q", chStr)
	}
	w, err := ParseWidth(widthStr)
	if err != nil {
		return ScanEntry{}, err
	}
	return ScanEntry{Channel: ch, Width: w}, nil
}

// ParseScanList parses a comma separated list of scan entries. A repeated
// (channel, width) pair is kept once, at its first position.
func ParseScanList(s string) ([]ScanEntry, error) {
	var out []ScanEntry
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		e, err := ParseScanEntry(part)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return UniqueScanEntries(out), nil
}

// UniqueScanEntries drops repeated entries, keeping first-seen order.
func UniqueScanEntries(entries []ScanEntry) []ScanEntry {
	seen := make(map[ScanEntry]bool, len(entries))
	var out []ScanEntry
	for _, e := range entries {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// ScanState is the tuning state of a channel scanner.
type ScanState int32

const (
	StateScan ScanState = iota
	StateHold
	StatePause
	StateListen
)

func (s ScanState) String() string {
	switch s {
	case StateScan:
		return "scan"
	case StateHold:
		return "hold"
	case StatePause:
		return "pause"
	case StateListen:
		return "listen"
	}
	return "unknown"
}

// ParseScanState maps a state name to its ScanState.
func ParseScanState(s string) (ScanState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scan":
		return StateScan, nil
	case "hold":
		return StateHold, nil
	case "pause":
		return StatePause, nil
	case "listen":
		return StateListen, nil
	}
	return StatePause, fmt.Errorf("unknown scan state %q", s)
}

// BandOf returns the band a channel number belongs to.
func BandOf(channel int) WiFiBand {
	if channel >= 1 && channel <= 14 {
		return Band24GHz
	}
	return Band5GHz
}

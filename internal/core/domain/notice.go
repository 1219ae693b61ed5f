package domain

import "time"

// SlotReader copies a captured frame out of the ring it was written to.
type SlotReader interface {
	ReadSlot(slot FrameSlot, dst []byte) ([]byte, error)
}

// Notice is a message sent by a radio capture to the collator.
type Notice interface {
	notice()
}

// RadioUpNotice announces a radio that finished setup and is capturing.
type RadioUpNotice struct {
	Radio RadioRecord
	Ring  SlotReader
}

// RadioDownNotice announces an orderly radio shutdown.
type RadioDownNotice struct {
	MAC  string
	Role Role
}

// RadioFailNotice announces a radio whose capture loop died.
type RadioFailNotice struct {
	MAC  string
	Role Role
	Err  error
}

// FrameNotice announces a frame written to a ring slot.
type FrameNotice struct {
	Slot FrameSlot
}

// ScannerNotice forwards a channel scanner event.
type ScannerNotice struct {
	MAC   string
	Role  Role
	Event ScanEvent
}

func (RadioUpNotice) notice()   {}
func (RadioDownNotice) notice() {}
func (RadioFailNotice) notice() {}
func (FrameNotice) notice()     {}
func (ScannerNotice) notice()   {}

// ScanEventKind classifies scanner events.
type ScanEventKind int

const (
	EventTuned ScanEventKind = iota
	EventStateChanged
	EventCommandOK
	EventCommandErr
	EventTuneFailed
	EventDwellUpdated
)

func (k ScanEventKind) String() string {
	switch k {
	case EventTuned:
		return "tuned"
	case EventStateChanged:
		return "state"
	case EventCommandOK:
		return "ok"
	case EventCommandErr:
		return "err"
	case EventTuneFailed:
		return "tune-failed"
	case EventDwellUpdated:
		return "dwell"
	}
	return "unknown"
}

// ScanEvent is emitted by a channel scanner. CmdID is set on events that
// answer a control command.
type ScanEvent struct {
	Kind    ScanEventKind
	CmdID   string
	State   ScanState
	Entry   ScanEntry
	Index   int
	Payload string
	Err     error
	At      time.Time
}

// Level is the severity of an Event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a structured, leveled pipeline event tagged with its originator.
type Event struct {
	Time       time.Time      `json:"time"`
	Level      Level          `json:"level"`
	Originator string         `json:"originator"`
	Message    string         `json:"message"`
	Fields     map[string]any `json:"fields,omitempty"`
}

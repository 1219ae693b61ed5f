package hopping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// UnknownID tags errors for commands whose id could not be parsed.
const UnknownID = "?"

// Reasons reported back to the command issuer.
const (
	ReasonRedundant   = "redundant command"
	ReasonUnsupported = "not supported"
	ReasonInvalid     = "invalid command"
)

// CommandError is a rejected command, tagged with the id that issued it.
type CommandError struct {
	ID     string
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s: %s", e.ID, e.Reason)
}

// Command is a validated scanner command. The concrete types below are the
// only implementations.
type Command interface {
	CmdID() string
	Name() string
}

type cmdBase struct{ ID string }

func (c cmdBase) CmdID() string { return c.ID }

// StateCmd reports the current state and tuning without changing them.
type StateCmd struct{ cmdBase }

// ScanCmd resumes sweeping the scan list.
type ScanCmd struct{ cmdBase }

// HoldCmd stops on the current scan list entry.
type HoldCmd struct{ cmdBase }

// PauseCmd stops on the current channel and silences frame notifications.
type PauseCmd struct{ cmdBase }

// ListenCmd tunes to an arbitrary entry outside the scan list.
type ListenCmd struct {
	cmdBase
	Entry domain.ScanEntry
}

// TxPwrCmd requests a transmit power change. It is parsed but not supported.
type TxPwrCmd struct {
	cmdBase
	Power int
}

// SpoofCmd requests a MAC change at runtime. It is parsed but not supported.
type SpoofCmd struct {
	cmdBase
	MAC string
}

func (StateCmd) Name() string  { return "state" }
func (ScanCmd) Name() string   { return "scan" }
func (HoldCmd) Name() string   { return "hold" }
func (PauseCmd) Name() string  { return "pause" }
func (ListenCmd) Name() string { return "listen" }
func (TxPwrCmd) Name() string  { return "txpwr" }
func (SpoofCmd) Name() string  { return "spoof" }

// NewCommand builds a parameterless command by name.
func NewCommand(id, name string) (Command, error) {
	return ParseCommand(id, name, nil)
}

// ParseCommand validates a (id, name, params) token triple into a Command.
func ParseCommand(id, name string, params []string) (Command, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = UnknownID
	}
	base := cmdBase{ID: id}
	invalid := &CommandError{ID: id, Reason: ReasonInvalid}

	switch strings.ToLower(name) {
	case "state":
		return StateCmd{base}, nil
	case "scan":
		return ScanCmd{base}, nil
	case "hold":
		return HoldCmd{base}, nil
	case "pause":
		return PauseCmd{base}, nil
	case "listen":
		if len(params) != 1 {
			return nil, invalid
		}
		entry, err := domain.ParseScanEntry(params[0])
		if err != nil {
			return nil, invalid
		}
		return ListenCmd{cmdBase: base, Entry: entry}, nil
	case "txpwr":
		if len(params) != 1 {
			return nil, invalid
		}
		pwr, err := strconv.Atoi(params[0])
		if err != nil {
			return nil, invalid
		}
		return TxPwrCmd{cmdBase: base, Power: pwr}, nil
	case "spoof":
		if len(params) != 1 || !domain.IsValidMAC(params[0]) {
			return nil, invalid
		}
		return SpoofCmd{cmdBase: base, MAC: params[0]}, nil
	}
	return nil, invalid
}

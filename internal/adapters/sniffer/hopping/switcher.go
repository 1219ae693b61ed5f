package hopping

import "github.com/lcalzada-xor/wsensor/internal/core/domain"

// ChannelSwitcher abstracts the mechanism for tuning a radio. The driver
// package's Linux controller implements it with iw.
type ChannelSwitcher interface {
	SetChannel(iface string, entry domain.ScanEntry) error
}

package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/hopping"
	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/ring"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
)

// ErrSetup wraps every failure that keeps a radio from starting.
var ErrSetup = errors.New("radio setup failed")

// SourceOpener opens the capture socket on a monitor interface.
type SourceOpener func(iface string, snaplen int, timeout time.Duration) (ports.PacketSource, error)

// OpenPcapSource is the SourceOpener backed by libpcap.
func OpenPcapSource(iface string, snaplen int, timeout time.Duration) (ports.PacketSource, error) {
	return OpenPcap(iface, snaplen, timeout)
}

// Options describes one radio.
type Options struct {
	Role        domain.Role
	Iface       string
	VNIC        string // monitor interface name, derived from Iface when empty
	ScanList    []domain.ScanEntry
	RegDomain   string
	SpoofMAC    string
	Record      bool
	Antenna     domain.Antenna
	Scanner     hopping.Config
	Slots       int
	SlotSize    int
	ReadTimeout time.Duration
}

// MonitorName derives the monitor interface name for iface.
func MonitorName(iface string) string {
	name := iface + "mon"
	if len(name) > 15 {
		name = name[len(name)-15:]
	}
	return name
}

// IntersectScanList keeps the configured entries whose channel the hardware
// supports, preserving their order. Repeated entries are kept once.
func IntersectScanList(configured []domain.ScanEntry, supported []int) []domain.ScanEntry {
	ok := make(map[int]bool, len(supported))
	for _, ch := range supported {
		ok[ch] = true
	}
	var out []domain.ScanEntry
	for _, e := range domain.UniqueScanEntries(configured) {
		if ok[e.Channel] {
			out = append(out, e)
		}
	}
	return out
}

func setupErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSetup, step, err)
}

// Setup brings the radio into monitor mode and builds its ring, scanner
// and capture socket. A failure undoes the interface changes made so far.
func Setup(ctl ports.RadioController, opts Options, open SourceOpener, logger *slog.Logger) (*Radio, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !domain.IsValidInterface(opts.Iface) {
		return nil, setupErr("interface", domain.ErrInvalidInterfaceName)
	}
	if opts.VNIC == "" {
		opts.VNIC = MonitorName(opts.Iface)
	}
	if opts.Slots <= 0 {
		opts.Slots = ring.DefaultSlots
	}
	if opts.SlotSize <= 0 {
		opts.SlotSize = ring.MaxFrameSize
	}
	log := logger.With("component", "radio", "role", string(opts.Role), "iface", opts.Iface)

	phy, channels, err := ctl.Capabilities(opts.Iface)
	if err != nil {
		return nil, setupErr("capabilities", err)
	}
	scan := IntersectScanList(opts.ScanList, channels)
	if len(scan) == 0 {
		return nil, setupErr("scan list", domain.ErrEmptyScanList)
	}
	hwaddr, err := ctl.HWAddr(opts.Iface)
	if err != nil {
		return nil, setupErr("hwaddr", err)
	}

	if opts.RegDomain != "" {
		if err := ctl.SetRegDomain(opts.RegDomain); err != nil {
			return nil, setupErr("regdomain", err)
		}
	}

	if err := ctl.Down(opts.Iface); err != nil {
		return nil, setupErr("nic down", err)
	}
	undo := func() {
		_ = ctl.DeleteInterface(opts.VNIC)
		_ = ctl.Up(opts.Iface)
	}
	if err := ctl.CreateMonitor(phy, opts.VNIC); err != nil {
		_ = ctl.Up(opts.Iface)
		return nil, setupErr("monitor interface", err)
	}

	mac := hwaddr
	spoofed := false
	if opts.SpoofMAC != "" {
		if err := ctl.SpoofMAC(opts.VNIC, opts.SpoofMAC); err != nil {
			undo()
			return nil, setupErr("spoof", err)
		}
		mac = domain.NormalizeMAC(opts.SpoofMAC)
		spoofed = true
	}
	if err := ctl.Up(opts.VNIC); err != nil {
		undo()
		return nil, setupErr("vnic up", err)
	}

	rec, err := domain.NewRadioRecord(mac, opts.Role, opts.VNIC)
	if err != nil {
		undo()
		return nil, setupErr("record", err)
	}
	rec.Phy = phy
	rec.NIC = opts.Iface
	rec.Driver, rec.Chipset = ctl.DriverInfo(opts.Iface)
	rec.Standards = ctl.Standards(phy)
	rec.Channels = channels
	rec.Antenna = opts.Antenna
	rec.Spoofed = spoofed
	rec.Record = opts.Record
	rec.ScanList = scan

	rg, err := ring.New(mac, opts.Slots, opts.SlotSize)
	if err != nil {
		undo()
		return nil, setupErr("ring", err)
	}

	scfg := opts.Scanner
	scfg.Iface = opts.VNIC
	scfg.Entries = scan
	scanner, err := hopping.NewScanner(scfg, ctl, logger.With("role", string(opts.Role)))
	if err != nil {
		undo()
		return nil, setupErr("scanner", err)
	}

	src, err := open(opts.VNIC, opts.SlotSize, opts.ReadTimeout)
	if err != nil {
		undo()
		return nil, setupErr("capture socket", err)
	}

	log.Info("Radio ready", "mac", mac, "vnic", opts.VNIC, "phy", phy, "driver", rec.Driver, "scan", len(scan))
	return &Radio{
		Record:  *rec,
		Scanner: scanner,
		Ring:    rg,
		ctl:     ctl,
		src:     src,
		logger:  log,
		state:   scanner.State(),
		idx:     -1,
	}, nil
}

// Teardown closes the capture socket and restores the managed interface.
// It must only be called after Run returned.
func (r *Radio) Teardown() {
	r.src.Close()
	if err := r.ctl.Down(r.Record.VNIC); err != nil {
		r.logger.Warn("Failed to bring monitor interface down", "error", err)
	}
	if err := r.ctl.DeleteInterface(r.Record.VNIC); err != nil {
		r.logger.Warn("Failed to delete monitor interface", "error", err)
	}
	if err := r.ctl.Up(r.Record.NIC); err != nil {
		r.logger.Warn("Failed to restore interface", "error", err)
	}
}

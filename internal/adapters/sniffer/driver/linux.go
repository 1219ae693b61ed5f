// Package driver brings radios into monitor mode and tunes them with the
// iw and ip tools and the sysfs network tree.
package driver

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// Runner executes a command and returns its combined output.
type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Error is a failed radio-control operation.
type Error struct {
	Op     string
	Iface  string
	Err    error
	Output string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Iface, e.Err)
	if e.Output != "" {
		msg += " (" + e.Output + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Linux implements ports.RadioController.
type Linux struct {
	run    Runner
	sysfs  string
	logger *slog.Logger
}

// NewLinux returns a controller that runs the system tools.
func NewLinux(logger *slog.Logger) *Linux {
	return NewLinuxWithRunner(execRunner, "/sys/class/net", logger)
}

// NewLinuxWithRunner returns a controller using run for commands and sysfs
// as the root of the network class tree.
func NewLinuxWithRunner(run Runner, sysfs string, logger *slog.Logger) *Linux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linux{run: run, sysfs: sysfs, logger: logger.With("component", "driver")}
}

func (l *Linux) cmd(op, iface, name string, args ...string) ([]byte, error) {
	out, err := l.run(name, args...)
	if err != nil {
		l.logger.Debug("Command failed", "cmd", name, "args", args, "output", string(out))
		return out, &Error{Op: op, Iface: iface, Err: err, Output: strings.TrimSpace(string(out))}
	}
	return out, nil
}

func checkIface(op, iface string) error {
	if !domain.IsValidInterface(iface) {
		return &Error{Op: op, Iface: iface, Err: domain.ErrInvalidInterfaceName}
	}
	return nil
}

// Capabilities maps the interface to its phy and lists the phy's enabled
// channels.
func (l *Linux) Capabilities(iface string) (string, []int, error) {
	if err := checkIface("capabilities", iface); err != nil {
		return "", nil, err
	}
	out, err := l.cmd("capabilities", iface, "iw", "dev")
	if err != nil {
		return "", nil, err
	}
	phy, err := phyForInterface(out, iface)
	if err != nil {
		return "", nil, &Error{Op: "capabilities", Iface: iface, Err: err}
	}
	info, err := l.cmd("capabilities", iface, "iw", "phy", phy, "info")
	if err != nil {
		return "", nil, err
	}
	return phy, phyChannels(info), nil
}

// phyForInterface finds iface in 'iw dev' output and returns its phy name
// ("phy#0" is returned as "phy0").
func phyForInterface(out []byte, iface string) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	currentPhy := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "phy#") {
			currentPhy = strings.Replace(line, "#", "", 1)
		} else if line == "Interface "+iface && currentPhy != "" {
			return currentPhy, nil
		}
	}
	return "", fmt.Errorf("interface %s not found in iw dev output", iface)
}

var reChannel = regexp.MustCompile(`\[([0-9]+)\]`)

// phyChannels collects the channel numbers of the Frequencies blocks of
// 'iw phy <phy> info', skipping disabled ones.
func phyChannels(out []byte) []int {
	var channels []int
	seen := make(map[int]bool)
	inFrequencies := false

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Frequencies:" {
			inFrequencies = true
			continue
		}
		if !inFrequencies {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			inFrequencies = false
			continue
		}
		if strings.Contains(line, "(disabled)") {
			continue
		}
		m := reChannel.FindStringSubmatch(line)
		if len(m) < 2 {
			continue
		}
		ch, err := strconv.Atoi(m[1])
		if err != nil || seen[ch] {
			continue
		}
		seen[ch] = true
		channels = append(channels, ch)
	}
	return channels
}

// Standards summarizes the 802.11 amendments a phy supports, e.g. "abgn".
func (l *Linux) Standards(phy string) string {
	out, err := l.run("iw", "phy", phy, "info")
	if err != nil {
		return ""
	}
	return standards(out)
}

func standards(info []byte) string {
	var b24, b5 bool
	for _, ch := range phyChannels(info) {
		if domain.BandOf(ch) == domain.Band24GHz {
			b24 = true
		} else {
			b5 = true
		}
	}
	var sb strings.Builder
	if b5 {
		sb.WriteString("a")
	}
	if b24 {
		sb.WriteString("bg")
	}
	if bytes.Contains(info, []byte("HT Capabilities")) {
		sb.WriteString("n")
	}
	if bytes.Contains(info, []byte("VHT Capabilities")) {
		sb.WriteString("ac")
	}
	return sb.String()
}

// HWAddr reads the interface MAC address from sysfs.
func (l *Linux) HWAddr(iface string) (string, error) {
	if err := checkIface("hwaddr", iface); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(l.sysfs, iface, "address"))
	if err != nil {
		return "", &Error{Op: "hwaddr", Iface: iface, Err: err}
	}
	mac := domain.NormalizeMAC(strings.TrimSpace(string(raw)))
	if !domain.IsValidMAC(mac) {
		return "", &Error{Op: "hwaddr", Iface: iface, Err: domain.ErrInvalidMAC}
	}
	return mac, nil
}

// DriverInfo resolves the bound kernel driver and the PCI/USB ids of the
// device behind iface.
func (l *Linux) DriverInfo(iface string) (string, string) {
	dev := filepath.Join(l.sysfs, iface, "device")
	var driver, chipset string
	if target, err := filepath.EvalSymlinks(filepath.Join(dev, "driver")); err == nil {
		driver = filepath.Base(target)
	}
	vendor, verr := os.ReadFile(filepath.Join(dev, "vendor"))
	device, derr := os.ReadFile(filepath.Join(dev, "device"))
	if verr == nil && derr == nil {
		chipset = strings.TrimSpace(string(vendor)) + ":" + strings.TrimSpace(string(device))
	}
	return driver, chipset
}

// CreateMonitor adds a monitor-mode virtual interface on phy.
func (l *Linux) CreateMonitor(phy, name string) error {
	if err := checkIface("create monitor", name); err != nil {
		return err
	}
	_, err := l.cmd("create monitor", name, "iw", "phy", phy, "interface", "add", name, "type", "monitor")
	return err
}

// DeleteInterface removes a virtual interface.
func (l *Linux) DeleteInterface(iface string) error {
	if err := checkIface("delete", iface); err != nil {
		return err
	}
	_, err := l.cmd("delete", iface, "iw", "dev", iface, "del")
	return err
}

// Up brings the interface up.
func (l *Linux) Up(iface string) error {
	if err := checkIface("up", iface); err != nil {
		return err
	}
	_, err := l.cmd("up", iface, "ip", "link", "set", iface, "up")
	return err
}

// Down brings the interface down.
func (l *Linux) Down(iface string) error {
	if err := checkIface("down", iface); err != nil {
		return err
	}
	_, err := l.cmd("down", iface, "ip", "link", "set", iface, "down")
	return err
}

// SetChannel tunes iface to entry, passing the width when it has one.
func (l *Linux) SetChannel(iface string, entry domain.ScanEntry) error {
	if entry.Channel <= 0 {
		return &Error{Op: "set channel", Iface: iface, Err: fmt.Errorf("invalid channel: %d", entry.Channel)}
	}
	args := []string{"dev", iface, "set", "channel", strconv.Itoa(entry.Channel)}
	if entry.Width != domain.WidthNone {
		args = append(args, entry.Width.String())
	}
	_, err := l.cmd("set channel", iface, "iw", args...)
	return err
}

var reCountry = regexp.MustCompile(`(?m)^country ([A-Z0-9]{2}):`)

// RegDomain returns the global regulatory domain.
func (l *Linux) RegDomain() (string, error) {
	out, err := l.cmd("get regdomain", "", "iw", "reg", "get")
	if err != nil {
		return "", err
	}
	m := reCountry.FindSubmatch(out)
	if m == nil {
		return "", &Error{Op: "get regdomain", Err: fmt.Errorf("no country in iw reg output")}
	}
	return string(m[1]), nil
}

// SetRegDomain sets the global regulatory domain to a two letter code.
func (l *Linux) SetRegDomain(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return &Error{Op: "set regdomain", Err: fmt.Errorf("invalid country code %q", code)}
	}
	_, err := l.cmd("set regdomain", "", "iw", "reg", "set", code)
	return err
}

// SpoofMAC changes the hardware address of a down interface.
func (l *Linux) SpoofMAC(iface, mac string) error {
	if err := checkIface("spoof", iface); err != nil {
		return err
	}
	if !domain.IsValidMAC(mac) {
		return &Error{Op: "spoof", Iface: iface, Err: domain.ErrInvalidMAC}
	}
	_, err := l.cmd("spoof", iface, "ip", "link", "set", "dev", iface, "address", mac)
	return err
}

// Package sniffertest provides fake radios and frame builders for tests.
package sniffertest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// FakeController is an in-memory ports.RadioController. Operations listed
// in Fail return an error; every call is recorded.
type FakeController struct {
	mu       sync.Mutex
	Phy      string
	Channels []int
	MACs     map[string]string // iface -> MAC
	Reg      string
	Fail     map[string]error // op -> error
	calls    []string
}

// NewFakeController returns a controller with a dual-band phy.
func NewFakeController() *FakeController {
	return &FakeController{
		Phy:      "phy0",
		Channels: []int{1, 6, 11, 36, 40},
		MACs:     map[string]string{"wlan0": "00:c0:ca:00:00:01", "wlan1": "00:c0:ca:00:00:02"},
		Reg:      "00",
		Fail:     map[string]error{},
	}
}

func (f *FakeController) record(op string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.TrimSpace(op+" "+strings.Join(args, " ")))
	return f.Fail[op]
}

// Calls returns the recorded operations in order.
func (f *FakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// SetFail makes op fail with err from now on.
func (f *FakeController) SetFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail[op] = err
}

func (f *FakeController) Capabilities(iface string) (string, []int, error) {
	if err := f.record("capabilities", iface); err != nil {
		return "", nil, err
	}
	return f.Phy, append([]int(nil), f.Channels...), nil
}

func (f *FakeController) HWAddr(iface string) (string, error) {
	if err := f.record("hwaddr", iface); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	mac, ok := f.MACs[iface]
	if !ok {
		return "", fmt.Errorf("no such interface %s", iface)
	}
	return mac, nil
}

func (f *FakeController) DriverInfo(iface string) (string, string) {
	return "fakedrv", "0x0000:0x0000"
}

func (f *FakeController) Standards(phy string) string { return "abgn" }

func (f *FakeController) CreateMonitor(phy, name string) error {
	return f.record("create", phy, name)
}

func (f *FakeController) DeleteInterface(iface string) error {
	return f.record("delete", iface)
}

func (f *FakeController) Up(iface string) error {
	return f.record("up", iface)
}

func (f *FakeController) Down(iface string) error {
	return f.record("down", iface)
}

func (f *FakeController) SetChannel(iface string, entry domain.ScanEntry) error {
	return f.record("channel", iface, entry.String())
}

func (f *FakeController) RegDomain() (string, error) {
	if err := f.record("getreg"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reg, nil
}

func (f *FakeController) SetRegDomain(code string) error {
	if err := f.record("setreg", code); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reg = code
	return nil
}

func (f *FakeController) SpoofMAC(iface, mac string) error {
	return f.record("spoof", iface, mac)
}

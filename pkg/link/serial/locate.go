package serial

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"go.bug.st/serial/enumerator"
)

// Raspberry Pi USB vendor ID and the product IDs MicroPython boards enumerate with.
const (
	PicoVID             = 0x2E8A
	PicoPIDMicroPython  = 0x0005
	PicoPIDMicroPython2 = 0x000A
)

// ErrNoPort is returned when no attached board looks like a jig.
var ErrNoPort = errors.New("no MicroPython board found")

// PortInfo describes an attached serial port.
type PortInfo struct {
	Name    string
	USB     bool
	VID     uint16
	PID     uint16
	Serial  string
	Product string
}

// IsPico reports whether the port looks like a MicroPython Pico.
// Debug probes share the vendor but never run MicroPython.
func (p *PortInfo) IsPico() bool {
	if p.USB && p.VID == PicoVID && (p.PID == PicoPIDMicroPython || p.PID == PicoPIDMicroPython2) {
		return true
	}
	return strings.Contains(p.Product, "Pico") && !strings.Contains(p.Product, "Debugprobe")
}

// Locator finds the serial port of the jig.
type Locator struct {
	// List enumerates ports, enumerator.GetDetailedPortsList when nil.
	List func() ([]*enumerator.PortDetails, error)
}

// Ports lists attached serial ports sorted by name.
func (l *Locator) Ports() ([]*PortInfo, error) {
	list := l.List
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	details, err := list()
	if err != nil {
		return nil, err
	}
	ports := make([]*PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, &PortInfo{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     parseID(d.VID),
			PID:     parseID(d.PID),
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// Locate returns the name of the first port that looks like a MicroPython
// Pico, or "" if there is none.
func (l *Locator) Locate() (string, error) {
	ports, err := l.Ports()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if p.IsPico() {
			glog.V(2).Infof("located %s (%04x:%04x %s)", p.Name, p.VID, p.PID, p.Product)
			return p.Name, nil
		}
	}
	return "", nil
}

func parseID(s string) uint16 {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

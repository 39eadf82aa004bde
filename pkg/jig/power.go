package jig

import (
	"fmt"
	"strings"

	"github.com/halspa/halspa.go/pkg/repl"
	"github.com/halspa/halspa.go/pkg/repl/literal"
)

// Rail is a switchable supply of the jig.
type Rail string

// Power rails.
const (
	Rail5V   Rail = "5v"
	Rail3V3  Rail = "3v3"
	Rail12V1 Rail = "12v_1"
	Rail12V2 Rail = "12v_2"
)

// Rails lists all power rails.
var Rails = []Rail{Rail5V, Rail3V3, Rail12V1, Rail12V2}

// ParseRail validates a rail name.
func ParseRail(s string) (Rail, error) {
	for _, r := range Rails {
		if string(r) == strings.ToLower(s) {
			return r, nil
		}
	}
	return "", argError("unknown power rail %q", s)
}

// PowerFault is the fault bitmask reported by the power controller.
type PowerFault uint16

// Fault bits.
const (
	FaultLimit4 PowerFault = 1 << 0
	FaultLimit3 PowerFault = 1 << 2
	FaultLimit2 PowerFault = 1 << 4
	FaultLimit1 PowerFault = 1 << 6
	Fault12V2   PowerFault = 1 << 9
	Fault12V1   PowerFault = 1 << 11
)

var faultNames = []struct {
	bit  PowerFault
	name string
}{
	{FaultLimit1, "limit_1"},
	{FaultLimit2, "limit_2"},
	{FaultLimit3, "limit_3"},
	{FaultLimit4, "limit_4"},
	{Fault12V1, "12v_1"},
	{Fault12V2, "12v_2"},
}

// String lists the active faults.
func (f PowerFault) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	rest := f
	for _, n := range faultNames {
		if f&n.bit != 0 {
			names = append(names, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%04x", uint16(rest)))
	}
	return strings.Join(names, "|")
}

// PowerControl drives the power controller of the jig.
type PowerControl struct {
	ex repl.Executor
}

const powconName = "powcon"

// NewPowerControl binds the power controller on the remote.
func NewPowerControl(ex repl.Executor) (*PowerControl, error) {
	imports := joinLines(boardImports, "from sauce.power_control import PowerControl")
	if err := bind(ex, imports, powconName, "PowerControl", literal.Expr("i2c")); err != nil {
		return nil, err
	}
	return &PowerControl{ex: ex}, nil
}

// EnablePower switches a rail.
func (p *PowerControl) EnablePower(rail Rail, on bool) error {
	rail, err := ParseRail(string(rail))
	if err != nil {
		return err
	}
	_, err = p.ex.Call(powconName+".enable_"+string(rail), on)
	return err
}

// EnableCurrentLimit switches current limit num, 1 to 4.
func (p *PowerControl) EnableCurrentLimit(num int, on bool) error {
	if num < 1 || num > 4 {
		return argError("current limit must be 1-4, got %d", num)
	}
	_, err := p.ex.Call(fmt.Sprintf("%s.enable_current_limit_%d", powconName, num), on)
	return err
}

// ReadFault reads the fault bitmask.
func (p *PowerControl) ReadFault() (PowerFault, error) {
	v, err := p.ex.Call(powconName + ".read_fault")
	if err != nil {
		return 0, err
	}
	n, err := toInt("read_fault", v)
	if err != nil {
		return 0, err
	}
	return PowerFault(n), nil
}

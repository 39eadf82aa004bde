package jig

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/halspa/halspa.go/pkg/repl"
	"github.com/halspa/halspa.go/pkg/repl/literal"
)

// DeviceInfo describes the firmware of the jig controller.
type DeviceInfo struct {
	Firmware string   `json:"firmware"`
	Machine  string   `json:"machine"`
	Modules  []string `json:"modules"`
}

// ReadDeviceInfo queries the firmware version, the machine and the loaded
// public modules.
func ReadDeviceInfo(ex repl.Executor) (*DeviceInfo, error) {
	var info DeviceInfo
	var err error
	if info.Firmware, err = ex.Execute("import os; print(os.uname().version)"); err != nil {
		return nil, err
	}
	if info.Machine, err = ex.Execute("import os; print(os.uname().machine)"); err != nil {
		return nil, err
	}
	out, err := ex.Execute("import sys; print([m for m in sys.modules.keys() if not m.startswith('_')])")
	if err != nil {
		return nil, err
	}
	v, err := literal.Parse(out)
	if err != nil {
		return nil, fmt.Errorf("%w: modules: %v", ErrUnexpectedValue, err)
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, unexpected("modules", v)
	}
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, unexpected("modules", item)
		}
		info.Modules = append(info.Modules, name)
	}
	return &info, nil
}

var moduleRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ImportModule imports a module on the remote.
func ImportModule(ex repl.Executor, name string) error {
	if !moduleRe.MatchString(name) {
		return argError("invalid module name %q", name)
	}
	_, err := ex.Execute("import " + name)
	return err
}

// PinMode is the mode of a controller GPIO.
type PinMode string

// Pin modes.
const (
	PinInput    PinMode = "input"
	PinOutput   PinMode = "output"
	PinPullUp   PinMode = "pullup"
	PinPullDown PinMode = "pulldown"
)

// MaxPin is the highest GPIO number of the controller.
const MaxPin = 39

// ParsePinMode parses a mode name, case-insensitively.
func ParsePinMode(s string) (PinMode, error) {
	switch mode := PinMode(strings.ToLower(s)); mode {
	case PinInput, PinOutput, PinPullUp, PinPullDown:
		return mode, nil
	}
	return "", argError("invalid pin mode %q", s)
}

// SetPinMode sets the mode of a controller GPIO.
func SetPinMode(ex repl.Executor, pin int, mode PinMode) error {
	if pin < 0 || pin > MaxPin {
		return argError("pin must be 0-%d, got %d", MaxPin, pin)
	}
	mode, err := ParsePinMode(string(mode))
	if err != nil {
		return err
	}
	_, err = ex.Execute(fmt.Sprintf("from machine import Pin; Pin(%d).mode('%s')", pin, mode))
	return err
}

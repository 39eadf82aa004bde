package jig

import (
	"fmt"

	"github.com/halspa/halspa.go/pkg/repl"
	"github.com/halspa/halspa.go/pkg/repl/literal"
)

// TCA9535 is one of the 16-bit digital expanders of the jig. A set bit in
// the configuration makes the pin an input.
type TCA9535 struct {
	Num           int
	Configuration uint16
	Output        uint16

	ex   repl.Executor
	name string
}

// NewTCA9535 binds expander num (1 or 2) with the initial configuration and
// output registers.
func NewTCA9535(ex repl.Executor, num int, configuration, output uint16) (*TCA9535, error) {
	if num != 1 && num != 2 {
		return nil, argError("expander must be 1 or 2, got %d", num)
	}
	d := &TCA9535{
		Num:           num,
		Configuration: configuration,
		Output:        output,
		ex:            ex,
		name:          fmt.Sprintf("digexp%d", num),
	}
	imports := joinLines(
		"from sauce.sauce import i2c, DIGEXP1_ADDR, DIGEXP2_ADDR",
		"from sauce.tca9535 import TCA9535",
	)
	addr := literal.Expr(fmt.Sprintf("DIGEXP%d_ADDR", num))
	if err := bind(ex, imports, d.name, "TCA9535", literal.Expr("i2c"), addr, configuration, output); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *TCA9535) call(method string, args ...interface{}) (interface{}, error) {
	return d.ex.Call(d.name+"."+method, args...)
}

func (d *TCA9535) callWord(method string) (uint16, error) {
	v, err := d.call(method)
	if err != nil {
		return 0, err
	}
	n, err := toInt(d.name+"."+method, v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 0xffff {
		return 0, unexpected(d.name+"."+method, v)
	}
	return uint16(n), nil
}

func checkBit(pin int) error {
	if pin < 0 || pin > 15 {
		return argError("expander pin must be 0-15, got %d", pin)
	}
	return nil
}

// Read reads the input port.
func (d *TCA9535) Read() (uint16, error) {
	return d.callWord("read")
}

// Write writes the output port.
func (d *TCA9535) Write(value uint16) error {
	_, err := d.call("write", value)
	return err
}

// ReadBit reads one input.
func (d *TCA9535) ReadBit(pin int) (bool, error) {
	if err := checkBit(pin); err != nil {
		return false, err
	}
	v, err := d.call("read_bit", pin)
	if err != nil {
		return false, err
	}
	return toBool(d.name+".read_bit", v)
}

// WriteBit writes one output. A deferred write is applied by Commit.
func (d *TCA9535) WriteBit(pin int, value, deferred bool) error {
	if err := checkBit(pin); err != nil {
		return err
	}
	_, err := d.call("write_bit", pin, value, deferred)
	return err
}

// Commit applies deferred bit writes.
func (d *TCA9535) Commit() error {
	_, err := d.call("commit")
	return err
}

// ReadConfiguration reads the configuration register.
func (d *TCA9535) ReadConfiguration() (uint16, error) {
	return d.callWord("read_configuration")
}

// WriteConfiguration writes the configuration register.
func (d *TCA9535) WriteConfiguration(configuration uint16) error {
	if _, err := d.call("write_configuration", configuration); err != nil {
		return err
	}
	d.Configuration = configuration
	return nil
}

// Pin binds a single pin of the expander.
func (d *TCA9535) Pin(num int) (*TCA9535Pin, error) {
	if err := checkBit(num); err != nil {
		return nil, err
	}
	p := &TCA9535Pin{
		Expander: d,
		Num:      num,
		name:     fmt.Sprintf("%s_pin%d", d.name, num),
	}
	if err := bind(d.ex, "", p.name, d.name+".get_pin", num); err != nil {
		return nil, err
	}
	return p, nil
}

// PinConfig is the direction of an expander pin.
type PinConfig int

// Pin directions.
const (
	PinConfigInput  PinConfig = 0
	PinConfigOutput PinConfig = 1
)

// TCA9535Pin is a single expander pin.
type TCA9535Pin struct {
	Expander *TCA9535
	Num      int

	name string
}

func (p *TCA9535Pin) call(method string, args ...interface{}) (interface{}, error) {
	return p.Expander.ex.Call(p.name+"."+method, args...)
}

// Read reads the pin level.
func (p *TCA9535Pin) Read() (bool, error) {
	v, err := p.call("read")
	if err != nil {
		return false, err
	}
	return toBool(p.name+".read", v)
}

// Write drives the pin.
func (p *TCA9535Pin) Write(value bool) error {
	_, err := p.call("write", value)
	return err
}

// Toggle inverts the pin output.
func (p *TCA9535Pin) Toggle() error {
	_, err := p.call("toggle")
	return err
}

// Configure sets the pin direction.
func (p *TCA9535Pin) Configure(config PinConfig) error {
	if config != PinConfigInput && config != PinConfigOutput {
		return argError("invalid pin configuration %d", config)
	}
	_, err := p.call("configure", int(config))
	return err
}

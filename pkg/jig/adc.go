package jig

import (
	"fmt"

	"github.com/halspa/halspa.go/pkg/repl"
	"github.com/halspa/halspa.go/pkg/repl/literal"
)

// DefaultRate is the fastest conversion rate of the ADS1115.
const DefaultRate = 7

// ADS1115 is one of the two ADCs of the jig.
type ADS1115 struct {
	Num  int
	Gain int

	ex   repl.Executor
	name string
}

// NewADS1115 binds ADC num (1 or 2) with the given gain index.
func NewADS1115(ex repl.Executor, num, gain int) (*ADS1115, error) {
	if num != 1 && num != 2 {
		return nil, argError("ADC must be 1 or 2, got %d", num)
	}
	if gain < 0 || gain > 5 {
		return nil, argError("gain must be 0-5, got %d", gain)
	}
	a := &ADS1115{Num: num, Gain: gain, ex: ex, name: fmt.Sprintf("ads%d", num)}
	imports := joinLines(
		"from sauce.sauce import i2c, ADC1_ADDR, ADC2_ADDR",
		"from ads1x15 import ADS1115",
	)
	addr := literal.Expr(fmt.Sprintf("ADC%d_ADDR", num))
	if err := bind(ex, imports, a.name, "ADS1115", literal.Expr("i2c"), addr, gain); err != nil {
		return nil, err
	}
	return a, nil
}

func checkChannel(channel, rate int) error {
	if channel < 0 || channel > 3 {
		return argError("channel must be 0-3, got %d", channel)
	}
	if rate < 0 || rate > 7 {
		return argError("rate must be 0-7, got %d", rate)
	}
	return nil
}

// ReadValue reads the raw conversion of a channel.
func (a *ADS1115) ReadValue(channel, rate int) (int64, error) {
	if err := checkChannel(channel, rate); err != nil {
		return 0, err
	}
	v, err := a.ex.Call(a.name+".read", rate, channel)
	if err != nil {
		return 0, err
	}
	return toInt(a.name+".read", v)
}

// ReadVoltage reads a channel in volts.
func (a *ADS1115) ReadVoltage(channel, rate int) (float64, error) {
	if err := checkChannel(channel, rate); err != nil {
		return 0, err
	}
	read, _ := literal.CallExpr(a.name+".read", rate, channel)
	v, err := a.ex.Call(a.name+".raw_to_v", literal.Expr(read))
	if err != nil {
		return 0, err
	}
	return toFloat(a.name+".raw_to_v", v)
}

// ADCChannel is an ADC input scaled by its front-end divider.
type ADCChannel struct {
	ADC     *ADS1115
	Channel int
	Scale   float64
	// Rb is the bottom resistor of the divider in ohms, nil without divider.
	Rb *float64

	name string
}

// NewADCChannel binds a scaled channel on the remote.
func NewADCChannel(adc *ADS1115, channel int, scale float64, rb *float64) (*ADCChannel, error) {
	if err := checkChannel(channel, DefaultRate); err != nil {
		return nil, err
	}
	c := &ADCChannel{
		ADC:     adc,
		Channel: channel,
		Scale:   scale,
		Rb:      rb,
		name:    fmt.Sprintf("ads1115_%d_ch%d", adc.Num, channel),
	}
	err := bind(adc.ex, "from sauce.adc import ADCChannel", c.name, "ADCChannel",
		literal.Expr(adc.name), channel, scale, rb)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ReadRaw reads the raw conversion.
func (c *ADCChannel) ReadRaw() (int64, error) {
	v, err := c.ADC.ex.Call(c.name + ".read_raw")
	if err != nil {
		return 0, err
	}
	return toInt(c.name+".read_raw", v)
}

// ReadVoltage reads the scaled voltage.
func (c *ADCChannel) ReadVoltage() (float64, error) {
	v, err := c.ADC.ex.Call(c.name + ".read_v")
	if err != nil {
		return 0, err
	}
	return toFloat(c.name+".read_v", v)
}

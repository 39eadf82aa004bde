package jig

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/halspa/halspa.go/pkg/cli/sh"
	"github.com/halspa/halspa.go/pkg/jig"
)

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("Invalid state %q, want on or off", s)
}

func parseInts(args []string, names ...string) ([]int, error) {
	if len(args) < len(names) {
		return nil, fmt.Errorf("%s required", names[len(args)])
	}
	res := make([]int, len(names))
	for i, name := range names {
		val, err := strconv.ParseInt(args[i], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("Invalid %s: %v", name, err)
		}
		res[i] = int(val)
	}
	return res, nil
}

var (
	// PowerCmd switches a power rail.
	PowerCmd = ishell.Cmd{
		Name:    "jig.power",
		Aliases: []string{"power"},
		Help:    "RAIL(5v|3v3|12v_1|12v_2) on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("RAIL and state required"))
				return
			}
			rail, err := jig.ParseRail(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			on, err := parseOnOff(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			p, err := jig.NewPowerControl(sh.Executor(c))
			if err != nil {
				c.Err(err)
				return
			}
			sh.PrintOK(c, p.EnablePower(rail, on))
		}),
	}

	// LimitCmd switches a current limit.
	LimitCmd = ishell.Cmd{
		Name:    "jig.limit",
		Aliases: []string{"limit"},
		Help:    "NUM(1-4) on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			nums, err := parseInts(c.Args, "NUM")
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("state required"))
				return
			}
			on, err := parseOnOff(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			p, err := jig.NewPowerControl(sh.Executor(c))
			if err != nil {
				c.Err(err)
				return
			}
			sh.PrintOK(c, p.EnableCurrentLimit(nums[0], on))
		}),
	}

	// FaultCmd reads the power fault bits.
	FaultCmd = ishell.Cmd{
		Name:    "jig.fault",
		Aliases: []string{"fault"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			p, err := jig.NewPowerControl(sh.Executor(c))
			if err != nil {
				c.Err(err)
				return
			}
			fault, err := p.ReadFault()
			if err != nil {
				c.Err(err)
				return
			}
			if sh.ShellFrom(c).OutputJSON {
				sh.PrintJSON(c, map[string]interface{}{"fault": uint16(fault), "names": fault.String()})
				return
			}
			c.Printf("0x%04x %s\n", uint16(fault), fault)
		}),
	}

	// PinCmd sets the mode of a controller GPIO.
	PinCmd = ishell.Cmd{
		Name:    "jig.pin",
		Aliases: []string{"pin"},
		Help:    "PIN(0-39) input|output|pullup|pulldown",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			pins, err := parseInts(c.Args, "PIN")
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("MODE required"))
				return
			}
			mode, err := jig.ParsePinMode(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			sh.PrintOK(c, jig.SetPinMode(sh.Executor(c), pins[0], mode))
		}),
	}

	// ADCCmd reads an ADC channel.
	ADCCmd = ishell.Cmd{
		Name:    "jig.adc",
		Aliases: []string{"adc"},
		Help:    "ADC(1|2) CHANNEL(0-3) [RATE(0-7)]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, err := parseInts(c.Args, "ADC", "CHANNEL")
			if err != nil {
				c.Err(err)
				return
			}
			rate := jig.DefaultRate
			if len(c.Args) > 2 {
				r, err := parseInts(c.Args[2:], "RATE")
				if err != nil {
					c.Err(err)
					return
				}
				rate = r[0]
			}
			adc, err := jig.NewADS1115(sh.Executor(c), vals[0], 1)
			if err != nil {
				c.Err(err)
				return
			}
			raw, err := adc.ReadValue(vals[1], rate)
			if err != nil {
				c.Err(err)
				return
			}
			v, err := adc.ReadVoltage(vals[1], rate)
			if err != nil {
				c.Err(err)
				return
			}
			if sh.ShellFrom(c).OutputJSON {
				sh.PrintJSON(c, map[string]interface{}{"raw": raw, "voltage": v})
				return
			}
			c.Printf("%d %.4fV\n", raw, v)
		}),
	}

	// DigExpCmd reads or writes a digital expander port.
	DigExpCmd = ishell.Cmd{
		Name:    "jig.digexp",
		Aliases: []string{"digexp"},
		Help:    "EXP(1|2) [VALUE]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			nums, err := parseInts(c.Args, "EXP")
			if err != nil {
				c.Err(err)
				return
			}
			d, err := jig.NewTCA9535(sh.Executor(c), nums[0], 0xffff, 0xffff)
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) > 1 {
				val, err := strconv.ParseUint(c.Args[1], 0, 16)
				if err != nil {
					c.Err(fmt.Errorf("Invalid VALUE: %v", err))
					return
				}
				sh.PrintOK(c, d.Write(uint16(val)))
				return
			}
			port, err := d.Read()
			if err != nil {
				c.Err(err)
				return
			}
			if sh.ShellFrom(c).OutputJSON {
				sh.PrintJSON(c, map[string]uint16{"port": port})
				return
			}
			c.Printf("0x%04x\n", port)
		}),
	}

	// MuxCmd routes an analog multiplexer input.
	MuxCmd = ishell.Cmd{
		Name:    "jig.mux",
		Aliases: []string{"mux"},
		Help:    "MUX(1-4) INPUT(0-7)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, err := parseInts(c.Args, "MUX", "INPUT")
			if err != nil {
				c.Err(err)
				return
			}
			m, err := jig.NewAnalogMux(sh.Executor(c))
			if err != nil {
				c.Err(err)
				return
			}
			sh.PrintOK(c, m.Select(vals[0], vals[1]))
		}),
	}
)

func init() {
	sh.AddCmds(
		&PowerCmd,
		&LimitCmd,
		&FaultCmd,
		&PinCmd,
		&ADCCmd,
		&DigExpCmd,
		&MuxCmd,
	)
}

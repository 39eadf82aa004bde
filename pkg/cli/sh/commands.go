package sh

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/halspa/halspa.go/pkg/bridge/mqtt"
	"github.com/halspa/halspa.go/pkg/jig"
	"github.com/halspa/halspa.go/pkg/link/serial"
	"github.com/halspa/halspa.go/pkg/repl"
)

// PrintJSON prints v as JSON.
func PrintJSON(c *ishell.Context, v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// PrintOutput prints what the remote printed.
func PrintOutput(c *ishell.Context, out string) {
	if ShellFrom(c).OutputJSON {
		PrintJSON(c, map[string]string{"output": out})
		return
	}
	if out != "" {
		c.Println(out)
	}
}

// PrintValue prints a value returned by a call.
func PrintValue(c *ishell.Context, v interface{}) {
	out, err := FormatValue(v, ShellFrom(c).OutputJSON)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(out)
}

// Execute runs code on the current jig and prints the output.
func Execute(c *ishell.Context, code string) error {
	out, err := Executor(c).Execute(code)
	if err != nil {
		c.Err(err)
		return err
	}
	PrintOutput(c, out)
	return nil
}

// PrintOK acknowledges a command without output.
func PrintOK(c *ishell.Context, err error) {
	if err != nil {
		c.Err(err)
		return
	}
	if ShellFrom(c).OutputJSON {
		PrintJSON(c, map[string]bool{"ok": true})
		return
	}
	c.Println("OK")
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "list serial ports, * marks MicroPython boards",
		Func: func(c *ishell.Context) {
			ports, err := (&serial.Locator{}).Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if ShellFrom(c).OutputJSON {
				if ports == nil {
					ports = []*serial.PortInfo{}
				}
				PrintJSON(c, ports)
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, p := range ports {
				mark := " "
				if p.IsPico() {
					mark = "*"
				}
				if p.USB {
					c.Printf("%s %s %04x:%04x %s\n", mark, p.Name, p.VID, p.PID, p.Product)
				} else {
					c.Printf("%s %s\n", mark, p.Name)
				}
			}
		},
	}

	// ConnectCmd connects a local jig.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[PORT|ws://HOST]",
		Func: func(c *ishell.Context) {
			var target string
			if len(c.Args) > 0 {
				target = c.Args[0]
			}
			if err := ShellFrom(c).ConnectLocal(target); err != nil {
				c.Err(err)
			}
		},
	}

	// RemoteCmd connects a jig served over MQTT.
	RemoteCmd = ishell.Cmd{
		Name:    "remote",
		Aliases: []string{"r"},
		Help:    "[JIG]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var jigID string
			if len(c.Args) > 0 {
				jigID = c.Args[0]
			} else {
				meta, err := s.SelectJig(context.TODO())
				if err != nil {
					c.Err(err)
					return
				}
				if meta == nil {
					c.Err(fmt.Errorf("no jig discovered"))
					return
				}
				jigID = meta.ID
			}
			if err := s.ConnectRemote(context.TODO(), jigID); err != nil {
				c.Err(err)
			}
		},
	}

	// DiscoverCmd discovers jigs served over MQTT.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			jigs, err := s.Discover(context.TODO())
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(jigs) == 0 {
					// in case jigs is nil, make it empty slice.
					jigs = []*mqtt.Meta{}
				}
				PrintJSON(c, jigs)
				return
			}
			if len(jigs) == 0 {
				c.Println("No jigs found")
				return
			}
			for _, meta := range jigs {
				c.Println(FormatMeta(meta))
			}
		},
	}

	// DisconnectCmd disconnects current jig.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// ResetCmd brings the local interpreter back to its prompt.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "interrupt and resynchronize the local session",
		Func: MustBeConnected(func(c *ishell.Context) {
			session := ShellFrom(c).Conn.Session
			if session == nil {
				c.Err(fmt.Errorf("reset requires a local connection"))
				return
			}
			PrintOK(c, session.Reset())
		}),
	}

	// ExecCmd executes a line of code.
	ExecCmd = ishell.Cmd{
		Name:    "exec",
		Aliases: []string{"x"},
		Help:    "CODE, quoted when it has spaces",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("CODE required"))
				return
			}
			Execute(c, strings.Join(c.Args, " "))
		}),
	}

	// PasteCmd executes multiple lines ended by a line with ";;".
	PasteCmd = ishell.Cmd{
		Name: "paste",
		Help: "read code until ;;",
		Func: MustBeConnected(func(c *ishell.Context) {
			c.ShowPrompt(false)
			defer c.ShowPrompt(true)
			c.Println("Enter code, end with ;;")
			code := strings.TrimSuffix(c.ReadMultiLines(";;"), ";;")
			if strings.TrimSpace(code) == "" {
				return
			}
			Execute(c, code)
		}),
	}

	// RunCmd executes a local script.
	RunCmd = ishell.Cmd{
		Name: "run",
		Help: "FILE",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			code, err := os.ReadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			Execute(c, string(code))
		}),
	}

	// CallCmd invokes a remote function.
	CallCmd = ishell.Cmd{
		Name: "call",
		Help: "FUNC [ARG...] [NAME=ARG...]",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FUNC required"))
				return
			}
			args, err := ParseCallArgs(c.Args[1:])
			if err != nil {
				c.Err(fmt.Errorf("%w: %v", repl.ErrArgument, err))
				return
			}
			v, err := Executor(c).Call(c.Args[0], args...)
			if err != nil {
				c.Err(err)
				return
			}
			PrintValue(c, v)
		}),
	}

	// InfoCmd shows firmware information.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			info, err := jig.ReadDeviceInfo(Executor(c))
			if err != nil {
				c.Err(err)
				return
			}
			if ShellFrom(c).OutputJSON {
				PrintJSON(c, info)
				return
			}
			c.Printf("firmware: %s\nmachine:  %s\nmodules:  %s\n",
				info.Firmware, info.Machine, strings.Join(info.Modules, ", "))
		}),
	}
)

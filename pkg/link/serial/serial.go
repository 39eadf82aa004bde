package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"
	"github.com/tarm/serial"

	"github.com/halspa/halspa.go/pkg/link"
	"github.com/halspa/halspa.go/pkg/repl"
)

// Port represents a serial port.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not read.
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3"), empty to locate the board.
	Device string

	// Baud rate, ignored by USB CDC but needed for UART bridges.
	Baud int

	// ReadTimeout bounds a single driver read so the pump can notice Close.
	ReadTimeout time.Duration
}

// DefaultBaud is the MicroPython console baud rate.
const DefaultBaud = 115200

// DefaultConfig returns the configuration of a MicroPython USB console.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Open opens a native serial port.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}

// Dialer returns a repl.Dialer opening the configured port, or the port
// found by loc when no device is configured.
func Dialer(cfg *Config, loc *Locator) repl.Dialer {
	return func() (repl.Channel, error) {
		c := *cfg
		if c.Device == "" {
			if loc == nil {
				loc = &Locator{}
			}
			name, err := loc.Locate()
			if err != nil {
				return nil, &repl.ConnectionError{Op: "locate", Err: err}
			}
			if name == "" {
				return nil, &repl.ConnectionError{Op: "locate", Err: ErrNoPort}
			}
			c.Device = name
		}
		if c.Baud == 0 {
			c.Baud = DefaultBaud
		}
		port, err := Open(&c)
		if err != nil {
			return nil, &repl.ConnectionError{Op: "open", Err: err}
		}
		glog.V(2).Infof("opened %s at %d baud", c.Device, c.Baud)
		return link.NewStream(port, c.ReadTimeout > 0), nil
	}
}

// Package env assembles sessions, bridge clients and servers from
// configuration files, environment variables and command line flags.
package env

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"

	"github.com/halspa/halspa.go/pkg/bridge/mqtt"
	"github.com/halspa/halspa.go/pkg/link/serial"
	"github.com/halspa/halspa.go/pkg/link/webrepl"
	"github.com/halspa/halspa.go/pkg/repl"
)

// Environment variables.
const (
	EnvConfig          = "HALSPA_CONFIG"
	EnvPort            = "HALSPA_PORT"
	EnvBaud            = "HALSPA_BAUD"
	EnvTimeout         = "HALSPA_TIMEOUT"
	EnvWebREPL         = "HALSPA_WEBREPL"
	EnvWebREPLPassword = "HALSPA_WEBREPL_PASSWORD"
	EnvBrokerURL       = "HALSPA_BROKER_URL"
	EnvJigID           = "HALSPA_JIG_ID"
)

// Transports.
const (
	TransportSerial  = "serial"
	TransportWebREPL = "webrepl"
)

// ErrNoBroker is returned when the bridge is used without a broker URL.
var ErrNoBroker = errors.New("no MQTT broker configured")

// Config provides common options to reach a jig.
type Config struct {
	// Port is the serial device, empty to locate the board.
	Port string
	Baud int
	// Timeout is the default read timeout of the session.
	Timeout time.Duration

	// WebREPL is the endpoint of a networked board, used instead of Port.
	WebREPL         string
	WebREPLPassword string

	// BrokerURL specifies the MQTT broker of the bridge.
	// e.g. mqtt://host:port/topic-prefix
	BrokerURL string
	JigID     string
}

type fileConfig struct {
	Port            string `toml:"port"`
	Baud            int    `toml:"baud"`
	Timeout         string `toml:"timeout"`
	WebREPL         string `toml:"webrepl"`
	WebREPLPassword string `toml:"webrepl_password"`
	BrokerURL       string `toml:"broker_url"`
	JigID           string `toml:"jig_id"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Baud:    serial.DefaultBaud,
		Timeout: repl.DefaultTimeout,
		JigID:   MachineID(),
	}
}

// LoadFile overrides the keys defined in a TOML file.
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if meta.IsDefined("port") {
		c.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return fmt.Errorf("invalid baud %d", raw.Baud)
		}
		c.Baud = raw.Baud
	}
	if meta.IsDefined("timeout") {
		if c.Timeout, err = ParseTimeout(raw.Timeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("webrepl") {
		c.WebREPL = strings.TrimSpace(raw.WebREPL)
	}
	if meta.IsDefined("webrepl_password") {
		c.WebREPLPassword = raw.WebREPLPassword
	}
	if meta.IsDefined("broker_url") {
		c.BrokerURL = strings.TrimSpace(raw.BrokerURL)
	}
	if meta.IsDefined("jig_id") {
		if id := strings.TrimSpace(raw.JigID); id != "" {
			c.JigID = id
		}
	}
	for _, key := range meta.Undecoded() {
		glog.Warningf("config %s: unknown key %s", path, key)
	}
	return nil
}

// LoadEnv overrides the settings present in the environment.
func (c *Config) LoadEnv(lookup func(string) (string, bool)) error {
	if val, ok := lookup(EnvPort); ok {
		c.Port = val
	}
	if val, ok := lookup(EnvBaud); ok && val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil || baud <= 0 {
			return fmt.Errorf("%s: invalid baud %q", EnvBaud, val)
		}
		c.Baud = baud
	}
	if val, ok := lookup(EnvTimeout); ok && val != "" {
		timeout, err := ParseTimeout(val)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = timeout
	}
	if val, ok := lookup(EnvWebREPL); ok {
		c.WebREPL = val
	}
	if val, ok := lookup(EnvWebREPLPassword); ok {
		c.WebREPLPassword = val
	}
	if val, ok := lookup(EnvBrokerURL); ok {
		c.BrokerURL = val
	}
	if val, ok := lookup(EnvJigID); ok && val != "" {
		c.JigID = val
	}
	return nil
}

// ParseTimeout accepts a duration ("1.5s") or a number of seconds.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid timeout %q", s)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %q", s)
	}
	return d, nil
}

// Transport names the configured channel.
func (c *Config) Transport() string {
	if c.WebREPL != "" {
		return TransportWebREPL
	}
	return TransportSerial
}

// Dialer creates the dialer of the configured channel.
func (c *Config) Dialer() repl.Dialer {
	if c.WebREPL != "" {
		return webrepl.Dialer(&webrepl.Config{URL: c.WebREPL, Password: c.WebREPLPassword})
	}
	cfg := serial.DefaultConfig(c.Port)
	if c.Baud > 0 {
		cfg.Baud = c.Baud
	}
	return serial.Dialer(cfg, nil)
}

// NewSession creates a disconnected session on the configured channel.
func (c *Config) NewSession() *repl.Session {
	s := repl.NewSession(c.Dialer())
	if c.Timeout > 0 {
		s.Timeout = c.Timeout
	}
	return s
}

// NewConnector creates a bridge client.
func (c *Config) NewConnector() (*mqtt.Connector, error) {
	if c.BrokerURL == "" {
		return nil, ErrNoBroker
	}
	return mqtt.NewConnector(c.BrokerURL)
}

// NewServer creates a bridge server exposing ex as the configured jig.
func (c *Config) NewServer(ex repl.TextExecutor, firmware string) (*mqtt.Server, error) {
	if c.BrokerURL == "" {
		return nil, ErrNoBroker
	}
	if c.JigID == "" || strings.ContainsAny(c.JigID, "/+#") {
		return nil, fmt.Errorf("%w: invalid jig ID %q", repl.ErrArgument, c.JigID)
	}
	host, _ := os.Hostname()
	return mqtt.NewServer(c.BrokerURL, mqtt.Meta{
		ID:        c.JigID,
		Transport: c.Transport(),
		Host:      host,
		Firmware:  firmware,
	}, ex)
}

// Flags binds command line flags to a Config. Only flags set explicitly
// override the file and the environment.
type Flags struct {
	ConfigPath string

	fs     *flag.FlagSet
	values Config
}

// SetupFlags registers the flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "Config file (TOML), defaults to $"+EnvConfig)
	fs.StringVar(&f.values.Port, "port", "", "Serial device, located by USB ID when empty")
	fs.IntVar(&f.values.Baud, "baud", serial.DefaultBaud, "Serial baud rate")
	fs.DurationVar(&f.values.Timeout, "timeout", repl.DefaultTimeout, "Default read timeout")
	fs.StringVar(&f.values.WebREPL, "webrepl", "", "WebREPL endpoint, used instead of the serial port")
	fs.StringVar(&f.values.WebREPLPassword, "webrepl-password", "", "WebREPL password")
	fs.StringVar(&f.values.BrokerURL, "broker", "", "MQTT broker URL of the bridge")
	fs.StringVar(&f.values.JigID, "jig", "", "Jig ID, defaults to one derived from the machine ID")
	return f
}

// Resolve builds the Config from defaults, the config file, the environment
// and explicitly set flags, in that order.
func (f *Flags) Resolve() (*Config, error) {
	return f.resolve(os.LookupEnv)
}

func (f *Flags) resolve(lookup func(string) (string, bool)) (*Config, error) {
	c := NewConfig()
	path := f.ConfigPath
	if path == "" {
		path, _ = lookup(EnvConfig)
	}
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.LoadEnv(lookup); err != nil {
		return nil, err
	}
	var err error
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			c.Port = f.values.Port
		case "baud":
			c.Baud = f.values.Baud
		case "timeout":
			if f.values.Timeout <= 0 {
				err = fmt.Errorf("timeout must be positive, got %v", f.values.Timeout)
			}
			c.Timeout = f.values.Timeout
		case "webrepl":
			c.WebREPL = f.values.WebREPL
		case "webrepl-password":
			c.WebREPLPassword = f.values.WebREPLPassword
		case "broker":
			c.BrokerURL = f.values.BrokerURL
		case "jig":
			c.JigID = f.values.JigID
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

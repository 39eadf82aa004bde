package env

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halspa/halspa.go/pkg/repl"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "halspa.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		val, ok := m[key]
		return val, ok
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
port = "/dev/ttyACM1"
baud = 57600
timeout = "2.5s"
broker_url = "mqtt://broker.lab:1883/halspa"
jig_id = "bench7"
`)
	c := NewConfig()
	require.NoError(t, c.LoadFile(path))
	assert.Equal(t, "/dev/ttyACM1", c.Port)
	assert.Equal(t, 57600, c.Baud)
	assert.Equal(t, 2500*time.Millisecond, c.Timeout)
	assert.Equal(t, "mqtt://broker.lab:1883/halspa", c.BrokerURL)
	assert.Equal(t, "bench7", c.JigID)
	assert.Equal(t, TransportSerial, c.Transport())
}

func TestLoadFileErrors(t *testing.T) {
	c := NewConfig()
	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "missing.toml")))
	assert.Error(t, c.LoadFile(writeConfig(t, `timeout = "soon"`)))
	assert.Error(t, c.LoadFile(writeConfig(t, `baud = 0`)))
	assert.Error(t, c.LoadFile(writeConfig(t, `port = `)))
}

func TestLoadEnv(t *testing.T) {
	c := NewConfig()
	require.NoError(t, c.LoadEnv(lookupMap(map[string]string{
		EnvWebREPL:         "192.168.4.1",
		EnvWebREPLPassword: "secret",
		EnvTimeout:         "3",
		EnvJigID:           "",
	})))
	assert.Equal(t, "192.168.4.1", c.WebREPL)
	assert.Equal(t, "secret", c.WebREPLPassword)
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.NotEmpty(t, c.JigID)
	assert.Equal(t, TransportWebREPL, c.Transport())

	assert.Error(t, c.LoadEnv(lookupMap(map[string]string{EnvBaud: "fast"})))
	assert.Error(t, c.LoadEnv(lookupMap(map[string]string{EnvTimeout: "-1"})))
}

func TestParseTimeout(t *testing.T) {
	cases := []struct {
		in  string
		out time.Duration
	}{
		{"1s", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"0.5", 500 * time.Millisecond},
		{" 10 ", 10 * time.Second},
	}
	for _, c := range cases {
		d, err := ParseTimeout(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.out, d, c.in)
	}
	for _, in := range []string{"", "0", "-2s", "later"} {
		_, err := ParseTimeout(in)
		assert.Error(t, err, in)
	}
}

func TestResolveOrder(t *testing.T) {
	path := writeConfig(t, `
port = "/dev/ttyACM1"
baud = 57600
jig_id = "from-file"
broker_url = "mqtt://file:1883"
`)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := SetupFlags(fs)
	require.NoError(t, fs.Parse([]string{"-jig", "from-flag", "-timeout", "4s"}))

	c, err := f.resolve(lookupMap(map[string]string{
		EnvConfig:    path,
		EnvPort:      "/dev/ttyUSB0",
		EnvJigID:     "from-env",
		EnvBrokerURL: "mqtt://env:1883",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", c.Port)
	assert.Equal(t, 57600, c.Baud)
	assert.Equal(t, 4*time.Second, c.Timeout)
	assert.Equal(t, "from-flag", c.JigID)
	assert.Equal(t, "mqtt://env:1883", c.BrokerURL)
}

func TestResolveDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := SetupFlags(fs)
	require.NoError(t, fs.Parse(nil))
	c, err := f.resolve(lookupMap(nil))
	require.NoError(t, err)
	assert.Empty(t, c.Port)
	assert.Equal(t, 115200, c.Baud)
	assert.Equal(t, repl.DefaultTimeout, c.Timeout)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f = SetupFlags(fs)
	require.NoError(t, fs.Parse([]string{"-timeout", "0s"}))
	_, err = f.resolve(lookupMap(nil))
	assert.Error(t, err)
}

func TestBuilders(t *testing.T) {
	c := NewConfig()
	c.Timeout = 3 * time.Second
	s := c.NewSession()
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.Equal(t, repl.ModeDisconnected, s.Mode())

	_, err := c.NewConnector()
	assert.ErrorIs(t, err, ErrNoBroker)
	_, err = c.NewServer(s, "")
	assert.ErrorIs(t, err, ErrNoBroker)

	c.BrokerURL = "mqtt://localhost:1883/halspa"
	c.JigID = "bench/7"
	_, err = c.NewServer(s, "")
	assert.ErrorIs(t, err, repl.ErrArgument)

	c.JigID = "bench7"
	srv, err := c.NewServer(s, "v1.24.1")
	require.NoError(t, err)
	assert.Equal(t, "bench7", srv.Meta.ID)
	assert.Equal(t, TransportSerial, srv.Meta.Transport)
	assert.Equal(t, "v1.24.1", srv.Meta.Firmware)
	assert.Equal(t, "halspa/", srv.Queue.TopicPrefix)

	conn, err := c.NewConnector()
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

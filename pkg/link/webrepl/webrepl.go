// Package webrepl connects to the MicroPython WebREPL over a websocket.
package webrepl

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/halspa/halspa.go/pkg/link"
	"github.com/halspa/halspa.go/pkg/repl"
)

// DefaultPort is where the WebREPL daemon listens.
const DefaultPort = 8266

// DefaultLoginTimeout bounds the password exchange.
const DefaultLoginTimeout = 5 * time.Second

var (
	passwordPrompt = []byte("Password: ")
	loginOK        = []byte("WebREPL connected")
	loginDenied    = []byte("Access denied")
)

// ErrAccessDenied is returned when the remote rejects the password.
var ErrAccessDenied = errors.New("webrepl: access denied")

// Config holds WebREPL connection settings.
type Config struct {
	// URL of the endpoint, "ws://host:8266/" or just the host.
	URL      string
	Password string
	// Origin sent with the handshake, defaults to http://localhost/.
	Origin       string
	LoginTimeout time.Duration
}

// ReadWriter reads and writes websocket messages as a byte stream.
type ReadWriter struct {
	conn    *websocket.Conn
	pending []byte
}

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return &ReadWriter{conn: conn}
}

// Read implements io.Reader.
func (rw *ReadWriter) Read(p []byte) (int, error) {
	for len(rw.pending) == 0 {
		var msg []byte
		if err := websocket.Message.Receive(rw.conn, &msg); err != nil {
			return 0, err
		}
		rw.pending = msg
	}
	n := copy(p, rw.pending)
	rw.pending = rw.pending[n:]
	return n, nil
}

// Write implements io.Writer. Terminal input travels in text frames.
func (rw *ReadWriter) Write(p []byte) (int, error) {
	if err := websocket.Message.Send(rw.conn, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (rw *ReadWriter) Close() error {
	return rw.conn.Close()
}

// Endpoint normalizes addr into a websocket URL.
func Endpoint(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		if u, err = url.Parse("ws://" + addr); err != nil {
			return "", err
		}
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("webrepl: unsupported scheme %q", u.Scheme)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(DefaultPort))
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Dial connects and logs in.
func Dial(cfg *Config) (*ReadWriter, error) {
	endpoint, err := Endpoint(cfg.URL)
	if err != nil {
		return nil, err
	}
	origin := cfg.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	conn, err := websocket.Dial(endpoint, "", origin)
	if err != nil {
		return nil, err
	}
	rw := New(conn)
	if err = rw.login(cfg); err != nil {
		conn.Close()
		return nil, err
	}
	glog.V(2).Infof("webrepl connected to %s", endpoint)
	return rw, nil
}

func (rw *ReadWriter) login(cfg *Config) error {
	timeout := cfg.LoginTimeout
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}
	if err := rw.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	defer rw.conn.SetReadDeadline(time.Time{})

	if _, err := rw.expect(passwordPrompt); err != nil {
		return err
	}
	if _, err := rw.Write([]byte(cfg.Password + "\r")); err != nil {
		return err
	}
	got, err := rw.expect(loginOK, loginDenied)
	if err != nil {
		return err
	}
	if bytes.Equal(got, loginDenied) {
		return ErrAccessDenied
	}
	return nil
}

// expect reads messages until one of the markers shows up and returns it.
// Bytes after the marker stay pending.
func (rw *ReadWriter) expect(markers ...[]byte) ([]byte, error) {
	var seen []byte
	for {
		for _, m := range markers {
			if i := bytes.Index(seen, m); i >= 0 {
				rw.pending = append(seen[i+len(m):], rw.pending...)
				return m, nil
			}
		}
		buf := make([]byte, 256)
		n, err := rw.Read(buf)
		if err != nil {
			return nil, err
		}
		seen = append(seen, buf[:n]...)
	}
}

// Dialer returns a repl.Dialer for the WebREPL endpoint.
func Dialer(cfg *Config) repl.Dialer {
	return func() (repl.Channel, error) {
		rw, err := Dial(cfg)
		if err != nil {
			return nil, &repl.ConnectionError{Op: "webrepl", Err: err}
		}
		return link.NewStream(rw, false), nil
	}
}

package repl

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Mode is the sub-protocol the session believes the remote is in.
type Mode int

// Session modes.
const (
	ModeDisconnected Mode = iota
	ModeIdle
	ModeRaw
	ModeRawPaste
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeDisconnected:
		return "disconnected"
	case ModeIdle:
		return "idle"
	case ModeRaw:
		return "raw"
	case ModeRawPaste:
		return "raw-paste"
	}
	return "unknown"
}

// Defaults.
const (
	DefaultTimeout     = time.Second
	DefaultMaxResponse = 1 << 20
)

const (
	interruptDelay     = 100 * time.Millisecond
	promptTimeout      = 2 * time.Second
	stderrTimeout      = 2 * time.Second
	stdoutTimeoutFloor = 10 * time.Second
	stdoutTimeoutScale = 10
)

// ExecutionBound is the longest ExecuteTimeout may block with timeout on a
// healthy channel, zero meaning DefaultTimeout.
func ExecutionBound(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	stdout := stdoutTimeoutFloor
	if scaled := timeout * stdoutTimeoutScale; scaled > stdout {
		stdout = scaled
	}
	// enter raw, negotiation and confirmation, both sections, exit raw and
	// the hard reset that may follow it
	return promptTimeout + interruptDelay +
		2*timeout +
		stdout + stderrTimeout +
		promptTimeout + 5*interruptDelay
}

// Session drives a MicroPython interpreter over a Channel.
//
// A Session is not safe for concurrent use: the protocol has no pipelining,
// so callers sharing one must serialize Execute and Call themselves.
type Session struct {
	// Timeout is the default bound of a single read.
	Timeout time.Duration
	// MaxResponse caps each section of a response, in bytes.
	MaxResponse int

	dial     Dialer
	ch       Channel
	mode     Mode
	window   int
	credit   int
	prompted bool // raw prompt seen and not yet consumed by a submission
	sleep    func(time.Duration)
}

var _ Executor = (*Session)(nil)

// NewSession creates a disconnected session which opens its channel with dial
// on first use.
func NewSession(dial Dialer) *Session {
	return &Session{
		Timeout:     DefaultTimeout,
		MaxResponse: DefaultMaxResponse,
		dial:        dial,
		sleep:       time.Sleep,
	}
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Connect opens the channel and brings the remote to its friendly prompt.
// It does nothing if already connected.
func (s *Session) Connect() error {
	if s.mode != ModeDisconnected {
		return nil
	}
	if s.dial == nil {
		return &ConnectionError{Op: "dial", Err: errors.New("no dialer")}
	}
	ch, err := s.dial()
	if err != nil {
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return err
		}
		return &ConnectionError{Op: "dial", Err: err}
	}
	s.ch = ch
	s.ch.SetTimeout(s.timeout())
	if err = s.resync(); err != nil {
		s.teardown()
		return connectionError("resync", err)
	}
	glog.V(2).Info("session connected")
	s.toIdle()
	return nil
}

// Disconnect closes the channel.
func (s *Session) Disconnect() error {
	s.mode = ModeDisconnected
	if s.ch == nil {
		return nil
	}
	ch := s.ch
	s.ch = nil
	return ch.Close()
}

// Close implements io.Closer.
func (s *Session) Close() error {
	return s.Disconnect()
}

// Reset interrupts whatever runs on the remote and soft-resets it.
func (s *Session) Reset() error {
	if s.mode == ModeDisconnected {
		return ErrNotConnected
	}
	if err := s.resync(); err != nil {
		s.teardown()
		return connectionError("reset", err)
	}
	s.toIdle()
	return nil
}

// Execute runs code on the remote and returns what it printed.
func (s *Session) Execute(code string) (string, error) {
	return s.ExecuteTimeout(code, 0)
}

// ExecuteTimeout is Execute with the read timeout overridden for this call.
// A zero timeout keeps the session default.
func (s *Session) ExecuteTimeout(code string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", argumentError("empty program text")
	}
	if timeout < 0 {
		return "", argumentError("negative timeout %v", timeout)
	}
	if err := s.Connect(); err != nil {
		return "", err
	}
	if glog.V(2) {
		glog.Infof("exec %q", strings.TrimSpace(code))
	}
	if err := s.enterRaw(); err != nil {
		return "", err
	}
	out, err := s.submit([]byte(strings.TrimRight(code, " \t\r\n")+"\r\n"), timeout)
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		s.teardown()
		return "", err
	}
	s.exitRaw()
	return out, err
}

// Call invokes a remote function and parses the literal it returns.
func (s *Session) Call(name string, args ...interface{}) (interface{}, error) {
	return Call(s, name, args...)
}

func (s *Session) submit(code []byte, timeout time.Duration) (string, error) {
	effective := s.timeout()
	if timeout > 0 {
		effective = timeout
		prev := s.ch.Timeout()
		s.ch.SetTimeout(timeout)
		defer s.ch.SetTimeout(prev)
	}

	err := s.enterPaste()
	var negErr *negotiationError
	switch {
	case err == nil:
		err = s.sendPaste(code)
	case errors.As(err, &negErr):
		glog.V(2).Infof("falling back to raw mode: %v", err)
		err = s.sendChunked(code)
	}
	if err != nil {
		return "", err
	}
	return s.readResponse(effective)
}

// resync interrupts any running program, waits for the friendly prompt and
// soft-resets the interpreter.
func (s *Session) resync() error {
	if err := s.ch.DiscardInput(); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if err := s.write(ctrlInterrupt); err != nil {
			return err
		}
		s.sleep(interruptDelay)
	}
	bound := promptTimeout
	if t := s.timeout(); t > bound {
		bound = t
	}
	if _, err := s.readUntil(friendlyPrompt, bound, "resync"); err != nil {
		return err
	}
	if err := s.write(ctrlEOT); err != nil {
		return err
	}
	s.sleep(interruptDelay)
	return s.ch.DiscardInput()
}

func (s *Session) enterRaw() error {
	err := s.write(ctrlInterrupt)
	if err == nil {
		s.sleep(interruptDelay)
		err = s.ch.DiscardInput()
	}
	if err == nil {
		err = s.write(ctrlRaw)
	}
	if err == nil {
		_, err = s.readUntil(rawBanner, promptTimeout, "enter raw")
	}
	if err != nil {
		s.teardown()
		return connectionError("enter raw", err)
	}
	s.mode, s.prompted = ModeRaw, true
	return nil
}

// exitRaw always leaves the session idle or disconnected.
func (s *Session) exitRaw() {
	if s.mode == ModeDisconnected {
		return
	}
	err := s.write(ctrlExitRaw)
	if err == nil {
		_, err = s.readUntil(friendlyPrompt, promptTimeout, "exit raw")
	}
	if err != nil {
		glog.Warningf("leaving raw mode failed: %v, hard reset", err)
		s.hardReset()
		return
	}
	s.toIdle()
}

// hardReset is best effort: failures only matter when the channel itself
// is broken, which disconnects the session.
func (s *Session) hardReset() {
	var werr error
	keep := func(err error) {
		if werr == nil {
			werr = err
		}
	}
	for i := 0; i < 3; i++ {
		keep(s.write(ctrlInterrupt))
		s.sleep(interruptDelay)
	}
	keep(s.write(ctrlExitRaw))
	s.sleep(interruptDelay)
	keep(s.ch.DiscardInput())
	keep(s.write(ctrlEOT))
	s.sleep(interruptDelay)
	keep(s.ch.DiscardInput())
	if werr != nil {
		glog.Warningf("hard reset failed: %v", werr)
		s.teardown()
		return
	}
	s.toIdle()
}

func (s *Session) toIdle() {
	s.mode = ModeIdle
	s.window, s.credit, s.prompted = 0, 0, false
}

func (s *Session) teardown() {
	if err := s.Disconnect(); err != nil {
		glog.Warningf("closing channel: %v", err)
	}
	s.window, s.credit, s.prompted = 0, 0, false
}

func (s *Session) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

func (s *Session) maxResponse() int {
	if s.MaxResponse > 0 {
		return s.MaxResponse
	}
	return DefaultMaxResponse
}

func (s *Session) write(b ...byte) error {
	return s.writeBytes(b)
}

func (s *Session) writeBytes(b []byte) error {
	n, err := s.ch.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// recv reads up to n bytes within the channel's current timeout.
func (s *Session) recv(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := s.ch.Recv(buf)
	if err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	return buf[:got], nil
}

// connectionError wraps err unless it already is a channel failure.
func connectionError(op string, err error) error {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}

// readUntil reads until term shows up, within bound overall. The returned
// bytes exclude term.
func (s *Session) readUntil(term []byte, bound time.Duration, stage string) ([]byte, error) {
	prev := s.ch.Timeout()
	defer s.ch.SetTimeout(prev)

	var (
		buf      []byte
		b        = make([]byte, 1)
		deadline = time.Now().Add(bound)
		limit    = s.maxResponse() + len(term)
	)
	for !bytes.HasSuffix(buf, term) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &TimeoutError{Stage: stage}
		}
		s.ch.SetTimeout(remaining)
		n, err := s.ch.Recv(b)
		if err != nil {
			return nil, &ConnectionError{Op: "read", Err: err}
		}
		if n == 0 {
			return nil, &TimeoutError{Stage: stage}
		}
		if len(buf) >= limit {
			return nil, tooLarge(stage, s.maxResponse())
		}
		buf = append(buf, b[0])
	}
	return buf[:len(buf)-len(term)], nil
}

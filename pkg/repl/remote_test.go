package repl

import (
	"encoding/binary"
	"errors"
	"strings"
	"time"
)

type pasteSupport int

const (
	pasteOK pasteSupport = iota
	pasteNo
	pasteUnknown
)

type remoteState int

const (
	stFriendly remoteState = iota
	stRaw
	stPasteReq
	stPasteReqA
	stPaste
	stPasteAborted
	stRunning
)

const (
	softReboot  = "MPY: soft reboot\r\nMicroPython v1.22.0 on 2024-01-01; Raspberry Pi Pico with RP2040\r\nType \"help()\" for more information.\r\n>>> "
	friendlyOut = "\r\nMicroPython v1.22.0 on 2024-01-01; Raspberry Pi Pico with RP2040\r\nType \"help()\" for more information.\r\n>>> "
)

// fakeRemote simulates a MicroPython board behind a Channel. Output is
// produced synchronously on Write, so Recv never waits: a short count means
// the remote had nothing more to say.
type fakeRemote struct {
	// eval runs submitted code and returns the stdout and stderr sections.
	eval func(code string) (string, string)

	paste      pasteSupport
	window     int
	grantEvery int  // defaults to window
	abortAfter int  // ends raw-paste after that many code bytes
	noise      byte // sent instead of the first credit grant
	noRaw      bool // ignores CTRL-A
	keepRaw    bool // ignores CTRL-B
	hang       bool // submitted code never completes
	silent     bool
	failWrite  error
	failPaste  error // fails writes once raw-paste started
	failRecv   error
	noGrants   bool   // never replenishes credit
	noConfirm  bool   // swallows the final EOT of raw-paste
	confirm    byte   // sent instead of the raw-paste confirmation
	ack        string // sent instead of "OK"
	noAck      bool
	openStderr bool // omits the EOT closing stderr

	out     []byte
	state   remoteState
	code    []byte
	remain  int
	since   int // code bytes since the host consumed a grant
	timeout time.Duration
	closed  bool

	written    int
	writes     [][]byte
	pasteBytes int
	overrun    bool
	discards   int
	timeouts   []time.Duration
	submitted  []string
}

func newFakeRemote(eval func(string) (string, string)) *fakeRemote {
	return &fakeRemote{eval: eval, window: 128}
}

func (r *fakeRemote) Write(p []byte) (int, error) {
	if r.closed {
		return 0, errors.New("closed")
	}
	if r.failWrite != nil {
		return 0, r.failWrite
	}
	if r.failPaste != nil && r.state == stPaste {
		return 0, r.failPaste
	}
	r.writes = append(r.writes, append([]byte(nil), p...))
	r.written += len(p)
	if r.silent {
		return len(p), nil
	}
	for _, c := range p {
		r.feed(c)
	}
	return len(p), nil
}

func (r *fakeRemote) Recv(p []byte) (int, error) {
	if r.closed {
		return 0, errors.New("closed")
	}
	if r.failRecv != nil {
		return 0, r.failRecv
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	if r.state == stPaste {
		for _, c := range p[:n] {
			if c == ctrlRaw {
				r.since = 0
			}
		}
	}
	return n, nil
}

func (r *fakeRemote) Pending() int { return len(r.out) }

func (r *fakeRemote) DiscardInput() error {
	r.discards++
	r.out = nil
	return nil
}

func (r *fakeRemote) SetTimeout(d time.Duration) {
	r.timeout = d
	r.timeouts = append(r.timeouts, d)
}

func (r *fakeRemote) Timeout() time.Duration { return r.timeout }

func (r *fakeRemote) Close() error {
	r.closed = true
	return nil
}

func (r *fakeRemote) emit(s string) {
	r.out = append(r.out, s...)
}

func (r *fakeRemote) run() {
	code := string(r.code)
	r.code = nil
	r.submitted = append(r.submitted, code)
	if r.hang {
		r.state = stRunning
		return
	}
	stdout, stderr := "", ""
	if r.eval != nil {
		stdout, stderr = r.eval(code)
	}
	r.state = stRaw
	if r.openStderr {
		r.emit(stdout + "\x04" + stderr)
		return
	}
	r.emit(stdout + "\x04" + stderr + "\x04>")
}

func (r *fakeRemote) feed(c byte) {
	switch r.state {
	case stFriendly:
		switch c {
		case ctrlInterrupt:
			r.emit("\r\n>>> ")
		case ctrlEOT:
			r.emit(softReboot)
		case ctrlRaw:
			if !r.noRaw {
				r.emit("\r\n" + string(rawBanner))
				r.state, r.code = stRaw, nil
			}
		case ctrlExitRaw:
			r.emit(friendlyOut)
		default:
			r.out = append(r.out, c)
		}
	case stRaw:
		switch c {
		case ctrlExitRaw:
			if !r.keepRaw {
				r.emit(friendlyOut)
				r.state = stFriendly
			}
		case ctrlInterrupt:
			r.code = nil
		case ctrlRaw:
			r.emit("\r\n" + string(rawBanner))
			r.code = nil
		case ctrlPaste:
			if len(r.code) == 0 {
				r.state = stPasteReq
			} else {
				r.code = append(r.code, c)
			}
		case ctrlEOT:
			if len(r.code) == 0 {
				r.emit("OK\r\nMPY: soft reboot\r\n" + string(rawBanner))
				return
			}
			switch {
			case r.noAck:
				r.code = nil
				return
			case r.ack != "":
				r.emit(r.ack)
			default:
				r.emit("OK")
			}
			r.run()
		default:
			r.code = append(r.code, c)
		}
	case stPasteReq:
		if c == 'A' {
			r.state = stPasteReqA
			return
		}
		r.code = append(r.code, ctrlPaste, c)
		r.state = stRaw
	case stPasteReqA:
		if c != ctrlRaw {
			r.code = append(r.code, ctrlPaste, 'A', c)
			r.state = stRaw
			return
		}
		switch r.paste {
		case pasteOK:
			var w [2]byte
			binary.LittleEndian.PutUint16(w[:], uint16(r.window))
			r.emit("R\x01" + string(w[:]))
			if r.window == 0 {
				r.state = stRaw
				return
			}
			r.state, r.code, r.since = stPaste, nil, 0
			r.remain = r.grantEvery
			if r.remain == 0 {
				r.remain = r.window
			}
		case pasteNo:
			r.emit("R\x00")
			r.state = stRaw
		case pasteUnknown:
			// Old firmware sees a second CTRL-A and reprints the banner.
			r.emit(string(rawBanner))
			r.state, r.code = stRaw, nil
		}
	case stPaste:
		r.pasteBytes++
		switch c {
		case ctrlEOT:
			switch {
			case r.noConfirm:
				r.state, r.code = stRaw, nil
				return
			case r.confirm != 0:
				r.out = append(r.out, r.confirm)
				r.state, r.code = stRaw, nil
				return
			}
			r.emit("\x04")
			r.run()
			return
		case ctrlInterrupt:
			r.emit("\x04")
			r.state, r.code = stRaw, nil
			return
		}
		r.code = append(r.code, c)
		r.since++
		if r.since > r.window {
			r.overrun = true
		}
		if r.abortAfter > 0 && len(r.code) == r.abortAfter {
			r.emit("\x04")
			r.state = stPasteAborted
			return
		}
		r.remain--
		if r.remain == 0 {
			if r.noGrants {
				r.remain = -1
				return
			}
			if r.noise != 0 {
				r.out = append(r.out, r.noise)
				r.noise = 0
			} else {
				r.emit("\x01")
			}
			r.remain = r.grantEvery
			if r.remain == 0 {
				r.remain = r.window
			}
		}
	case stPasteAborted:
		r.pasteBytes++
		if c == ctrlEOT {
			r.run()
		}
	case stRunning:
		if c == ctrlInterrupt {
			r.emit("\x04Traceback (most recent call last):\r\nKeyboardInterrupt: \r\n\x04>")
			r.state = stRaw
		}
	}
}

// printer evaluates print(...) of string or repr literals from a table.
func printer(table map[string]string) func(string) (string, string) {
	return func(code string) (string, string) {
		code = strings.TrimSpace(code)
		if out, ok := table[code]; ok {
			return out, ""
		}
		return "", "Traceback (most recent call last):\r\n  File \"<stdin>\", line 1, in <module>\r\nSyntaxError: invalid syntax\r\n"
	}
}

package repl

import (
	"io"
	"time"
)

// Control bytes of the MicroPython REPL.
const (
	ctrlRaw       byte = 0x01 // CTRL-A, also credit granted in raw-paste
	ctrlExitRaw   byte = 0x02 // CTRL-B
	ctrlInterrupt byte = 0x03 // CTRL-C
	ctrlEOT       byte = 0x04 // CTRL-D, also soft reset in friendly mode
	ctrlPaste     byte = 0x05 // CTRL-E
)

var (
	pasteRequest    = []byte{ctrlPaste, 'A', ctrlRaw}
	pasteSupported  = []byte{'R', 0x01}
	pasteRefused    = []byte{'R', 0x00}
	rawBanner       = []byte("raw REPL; CTRL-B to exit\r\n>")
	rawAck          = []byte("OK")
	friendlyPrompt  = []byte(">>>")
	rawPrompt       = []byte(">")
	terminatorBytes = []byte{ctrlEOT}
)

// Channel is the duplex byte stream carrying the protocol, typically a
// serial port. Implementations need not be safe for concurrent use.
type Channel interface {
	io.WriteCloser
	// Recv reads up to len(p) bytes and waits at most the current timeout
	// for all of them. A short count with a nil error means the timeout
	// elapsed.
	Recv(p []byte) (int, error)
	// Pending reports the number of received bytes not yet consumed.
	Pending() int
	// DiscardInput drops everything received but not yet consumed.
	DiscardInput() error
	// SetTimeout changes the bound used by Recv.
	SetTimeout(time.Duration)
	// Timeout returns the bound used by Recv.
	Timeout() time.Duration
}

// Dialer opens the Channel of a session.
type Dialer func() (Channel, error)

// ChannelDialer returns a Dialer always handing out ch, useful when the
// channel was opened by the caller.
func ChannelDialer(ch Channel) Dialer {
	return func() (Channel, error) {
		return ch, nil
	}
}

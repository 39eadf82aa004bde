package repl

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/golang/glog"
)

const (
	chunkSize  = 32
	chunkDelay = 10 * time.Millisecond
)

// enterPaste negotiates raw-paste mode. A *negotiationError means the remote
// stays in raw mode and the plain chunked path must be used.
func (s *Session) enterPaste() error {
	if err := s.writeBytes(pasteRequest); err != nil {
		return err
	}
	reply, err := s.recv(2)
	if err != nil {
		return err
	}
	switch {
	case bytes.Equal(reply, pasteSupported):
		raw, err := s.recv(2)
		if err != nil {
			return err
		}
		if len(raw) < 2 {
			return &TimeoutError{Stage: "raw-paste window"}
		}
		window := int(binary.LittleEndian.Uint16(raw))
		if window == 0 {
			return &ProtocolError{Stage: "raw-paste window", Got: raw}
		}
		glog.V(3).Infof("raw-paste window %d", window)
		s.window, s.credit, s.mode = window, window, ModeRawPaste
		return nil
	case bytes.Equal(reply, pasteRefused):
		return &negotiationError{reply: reply}
	}
	// Not understood: the remote printed something else, skip to its prompt.
	_, err = s.readUntil(rawPrompt, promptTimeout, "raw-paste negotiation")
	s.prompted = err == nil
	return &negotiationError{reply: reply}
}

// sendPaste transmits code within the credit window granted by the remote.
func (s *Session) sendPaste(code []byte) error {
	defer func() {
		if s.mode == ModeRawPaste {
			s.mode = ModeRaw
		}
		s.credit = 0
	}()
	s.prompted = false

	for sent := 0; sent < len(code); {
		if s.credit == 0 || s.ch.Pending() > 0 {
			b, err := s.recv(1)
			if err != nil {
				return err
			}
			if len(b) == 0 {
				return &TimeoutError{Stage: "raw-paste flow control"}
			}
			switch b[0] {
			case ctrlRaw:
				s.credit = s.window
			case ctrlEOT:
				glog.V(2).Infof("remote ended raw-paste after %d of %d bytes", sent, len(code))
				return s.write(ctrlEOT)
			default:
				return &ProtocolError{Stage: "raw-paste flow control", Got: b}
			}
			continue
		}
		n := len(code) - sent
		if n > s.credit {
			n = s.credit
		}
		if err := s.writeBytes(code[sent : sent+n]); err != nil {
			return err
		}
		sent += n
		s.credit -= n
	}

	if err := s.write(ctrlEOT); err != nil {
		return err
	}
	// The remote grants credit as soon as a window is consumed, so grants
	// may precede the confirmation when the code fills the last window.
	b, err := s.recv(1)
	for err == nil && len(b) == 1 && b[0] == ctrlRaw {
		b, err = s.recv(1)
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return &TimeoutError{Stage: "raw-paste end"}
	}
	if b[0] != ctrlEOT {
		return &ProtocolError{Stage: "raw-paste end", Got: b}
	}
	return nil
}

// sendChunked transmits code in plain raw mode, which has no flow control.
func (s *Session) sendChunked(code []byte) error {
	if !s.prompted {
		if _, err := s.readUntil(rawPrompt, promptTimeout, "raw prompt"); err != nil {
			return err
		}
	}
	s.prompted = false

	for i := 0; i < len(code); i += chunkSize {
		end := i + chunkSize
		if end > len(code) {
			end = len(code)
		}
		if err := s.writeBytes(code[i:end]); err != nil {
			return err
		}
		if end < len(code) {
			s.sleep(chunkDelay)
		}
	}
	if err := s.write(ctrlEOT); err != nil {
		return err
	}
	ack, err := s.recv(len(rawAck))
	if err != nil {
		return err
	}
	if len(ack) == 0 {
		return &TimeoutError{Stage: "raw submit"}
	}
	if !bytes.Equal(ack, rawAck) {
		return &ProtocolError{Stage: "raw submit", Got: ack}
	}
	return nil
}

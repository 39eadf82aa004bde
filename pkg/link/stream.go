package link

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/halspa/halspa.go/pkg/repl"
)

const pumpBufferSize = 256

// Flusher is implemented by ports able to drop unread data in the driver.
type Flusher interface {
	Flush() error
}

// Stream turns an io.ReadWriteCloser into a repl.Channel.
// A background reader pumps incoming bytes into a buffer, so the number of
// pending bytes is known and receiving can be bounded by a timeout even when
// the underlying Read blocks.
type Stream struct {
	rw          io.ReadWriteCloser
	readTimeout bool

	lock    sync.Mutex
	buf     []byte
	err     error
	timeout time.Duration
	notify  chan struct{}
	done    chan struct{}
	closed  sync.Once
}

var _ repl.Channel = (*Stream)(nil)

// NewStream starts pumping rw. Set readTimeout when Read on rw returns
// periodically with io.EOF or a timeout error instead of blocking, as serial
// ports opened with a read timeout do.
func NewStream(rw io.ReadWriteCloser, readTimeout bool) *Stream {
	s := &Stream{
		rw:          rw,
		readTimeout: readTimeout,
		timeout:     repl.DefaultTimeout,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Stream) pump() {
	buf := make([]byte, pumpBufferSize)
	for {
		n, err := s.rw.Read(buf)
		if n > 0 {
			s.lock.Lock()
			s.buf = append(s.buf, buf[:n]...)
			s.lock.Unlock()
			s.signal()
		}
		select {
		case <-s.done:
			return
		default:
		}
		if err == nil {
			continue
		}
		if s.readTimeout && (err == io.EOF || os.IsTimeout(err)) {
			continue
		}
		glog.V(2).Infof("stream read: %v", err)
		s.lock.Lock()
		s.err = err
		s.lock.Unlock()
		s.signal()
		return
	}
}

func (s *Stream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, os.ErrClosed
	default:
	}
	return s.rw.Write(p)
}

// Recv implements repl.Channel.
func (s *Stream) Recv(p []byte) (int, error) {
	var (
		got   int
		timer *time.Timer
	)
	for {
		s.lock.Lock()
		n := copy(p[got:], s.buf)
		s.buf = s.buf[n:]
		got += n
		err, timeout := s.err, s.timeout
		s.lock.Unlock()

		if got == len(p) {
			return got, nil
		}
		if err != nil {
			return got, err
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
			defer timer.Stop()
		}
		select {
		case <-s.notify:
		case <-timer.C:
			return got, nil
		case <-s.done:
			return got, os.ErrClosed
		}
	}
}

// Pending implements repl.Channel.
func (s *Stream) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.buf)
}

// DiscardInput implements repl.Channel.
func (s *Stream) DiscardInput() error {
	s.lock.Lock()
	s.buf = nil
	s.lock.Unlock()
	if f, ok := s.rw.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// SetTimeout implements repl.Channel.
func (s *Stream) SetTimeout(d time.Duration) {
	s.lock.Lock()
	s.timeout = d
	s.lock.Unlock()
}

// Timeout implements repl.Channel.
func (s *Stream) Timeout() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.timeout
}

// Close stops the pump and closes the underlying stream.
func (s *Stream) Close() error {
	err := os.ErrClosed
	s.closed.Do(func() {
		close(s.done)
		err = s.rw.Close()
	})
	return err
}

package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halspa/halspa.go/pkg/repl"
)

type fakeExecutor struct {
	lock     sync.Mutex
	inflight int32
	overlap  bool
	codes    []string
	timeouts []time.Duration
	result   func(code string) (string, error)
}

func (e *fakeExecutor) ExecuteTimeout(code string, timeout time.Duration) (string, error) {
	if atomic.AddInt32(&e.inflight, 1) > 1 {
		e.overlap = true
	}
	defer atomic.AddInt32(&e.inflight, -1)
	time.Sleep(time.Millisecond)
	e.lock.Lock()
	e.codes = append(e.codes, code)
	e.timeouts = append(e.timeouts, timeout)
	e.lock.Unlock()
	return e.result(code)
}

// loopback connects a RemoteSession to a Server without a broker.
func loopback(t *testing.T, ex *fakeExecutor) *RemoteSession {
	srv := &Server{Meta: Meta{ID: "jig1"}, Executor: ex}
	r := newRemoteSession(&Queue{}, "jig1")
	r.publish = func(topic string, payload []byte) error {
		assert.Equal(t, "jig1/exec", topic)
		go func() {
			reply, err := srv.handle(payload)
			if assert.NoError(t, err) {
				r.queue.Deliver("jig1/result", reply)
			}
		}()
		return nil
	}
	return r
}

func TestRemoteExecute(t *testing.T) {
	ex := &fakeExecutor{result: func(code string) (string, error) { return "Hello, HALSPA!", nil }}
	r := loopback(t, ex)
	defer r.Close()

	out, err := r.ExecuteTimeout("print('Hello, HALSPA!')", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Hello, HALSPA!", out)
	assert.Equal(t, []string{"print('Hello, HALSPA!')"}, ex.codes)
	assert.Equal(t, []time.Duration{3 * time.Second}, ex.timeouts)
}

func TestRemoteCall(t *testing.T) {
	ex := &fakeExecutor{result: func(code string) (string, error) { return "{'a': [1, 2]}\n", nil }}
	r := loopback(t, ex)

	v, err := r.Call("f", 1, "x", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": []interface{}{int64(1), int64(2)}}, v)
	assert.Equal(t, []string{"print(repr(f(1, 'x', True)))"}, ex.codes)
}

func TestRemoteErrors(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "remote",
			err:  &repl.RemoteError{Text: "Traceback (most recent call last):\nZeroDivisionError: divide by zero\n"},
			check: func(t *testing.T, err error) {
				var remoteErr *repl.RemoteError
				require.ErrorAs(t, err, &remoteErr)
				assert.Equal(t, "Traceback (most recent call last):\nZeroDivisionError: divide by zero\n", remoteErr.Text)
			},
		},
		{
			name: "timeout",
			err:  &repl.TimeoutError{Stage: "stdout"},
			check: func(t *testing.T, err error) {
				var timeoutErr *repl.TimeoutError
				require.ErrorAs(t, err, &timeoutErr)
				assert.Equal(t, "stdout", timeoutErr.Stage)
			},
		},
		{
			name: "protocol",
			err:  &repl.ProtocolError{Stage: "raw submit", Got: []byte{0xff, 'K'}},
			check: func(t *testing.T, err error) {
				var protoErr *repl.ProtocolError
				require.ErrorAs(t, err, &protoErr)
				assert.Equal(t, []byte{0xff, 'K'}, protoErr.Got)
			},
		},
		{
			name: "connection",
			err:  &repl.ConnectionError{Op: "resync", Err: &repl.TimeoutError{Stage: "resync"}},
			check: func(t *testing.T, err error) {
				var connErr *repl.ConnectionError
				require.ErrorAs(t, err, &connErr)
				assert.Equal(t, "resync", connErr.Op)
				assert.Equal(t, "resync: timeout", connErr.Err.Error())
			},
		},
		{
			name: "too large",
			err:  fmt.Errorf("stdout: %w", repl.ErrResponseTooLarge),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, repl.ErrResponseTooLarge)
			},
		},
		{
			name: "argument",
			err:  fmt.Errorf("%w: empty program text", repl.ErrArgument),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, repl.ErrArgument)
			},
		},
		{
			name: "other",
			err:  errors.New("jig on fire"),
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "jig on fire")
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ex := &fakeExecutor{result: func(string) (string, error) { return "ignored", c.err }}
			out, err := loopback(t, ex).Execute("print(1)")
			assert.Empty(t, out)
			c.check(t, err)
		})
	}
}

func TestRemoteArgument(t *testing.T) {
	ex := &fakeExecutor{}
	r := loopback(t, ex)
	_, err := r.Execute(" \n")
	assert.ErrorIs(t, err, repl.ErrArgument)
	_, err = r.ExecuteTimeout("print(1)", -1)
	assert.ErrorIs(t, err, repl.ErrArgument)
	assert.Empty(t, ex.codes)
}

func TestRemoteReplyTimeout(t *testing.T) {
	r := newRemoteSession(&Queue{}, "jig1")
	r.ReplyTimeout = 20 * time.Millisecond
	r.bound = func(time.Duration) time.Duration { return 0 }
	r.publish = func(string, []byte) error { return nil }

	_, err := r.Execute("print(1)")
	assert.ErrorIs(t, err, repl.ErrTimeout)

	r.publish = func(string, []byte) error { return ErrTokenTimeout }
	_, err = r.Execute("print(1)")
	assert.ErrorIs(t, err, repl.ErrConnection)
	assert.ErrorIs(t, err, ErrTokenTimeout)
}

func TestRemoteReplyWait(t *testing.T) {
	r := newRemoteSession(&Queue{}, "jig1")
	// The server may spend the stdout floor plus the raw mode transitions
	// before answering a call without a timeout.
	assert.Greater(t, int64(r.replyWait(0)), int64(DefaultReplyTimeout+16*time.Second))
	assert.Equal(t, DefaultReplyTimeout+repl.ExecutionBound(3*time.Second), r.replyWait(3*time.Second))
}

func TestServerSerializes(t *testing.T) {
	ex := &fakeExecutor{result: func(code string) (string, error) { return code, nil }}
	r := loopback(t, ex)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("print(%d)", i)
			out, err := r.Execute(code)
			assert.NoError(t, err)
			assert.Equal(t, code, out)
		}(i)
	}
	wg.Wait()
	assert.False(t, ex.overlap)
	assert.Len(t, ex.codes, 8)
}

func TestServerMalformed(t *testing.T) {
	srv := &Server{Meta: Meta{ID: "jig1"}, Executor: &fakeExecutor{}}
	_, err := srv.handle([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseMeta(t *testing.T) {
	meta, ok := parseMeta("bench7/meta", []byte(`{"id":"x","transport":"serial","host":"lab-pc"}`))
	require.True(t, ok)
	assert.Equal(t, &Meta{ID: "bench7", Transport: "serial", Host: "lab-pc"}, meta)

	_, ok = parseMeta("bench7/meta", nil)
	assert.False(t, ok)
	_, ok = parseMeta("bench7/meta", []byte("{"))
	assert.False(t, ok)
	_, ok = parseMeta("bench7/result", []byte("{}"))
	assert.False(t, ok)
}

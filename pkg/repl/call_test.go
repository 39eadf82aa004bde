package repl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halspa/halspa.go/pkg/repl/literal"
)

func TestCallRoundTrip(t *testing.T) {
	cases := []struct {
		expr    string
		printed string
		call    func(ex Executor) (interface{}, error)
		expect  interface{}
	}{
		{
			expr:    "f(1, 'x', True)",
			printed: "[1, 'x', True]",
			call:    func(ex Executor) (interface{}, error) { return ex.Call("f", 1, "x", true) },
			expect:  []interface{}{int64(1), "x", true},
		},
		{
			expr:    "adc.read(0)",
			printed: "17324",
			call:    func(ex Executor) (interface{}, error) { return ex.Call("adc.read", 0) },
			expect:  int64(17324),
		},
		{
			expr:    "adc.voltage(0, gain=2)",
			printed: "1.0238",
			call: func(ex Executor) (interface{}, error) {
				return ex.Call("adc.voltage", 0, literal.Kwargs{"gain": 2})
			},
			expect: 1.0238,
		},
		{
			expr:    "info()",
			printed: "{'name': 'halspa', 'pins': [25, 26], 'ok': None}",
			call:    func(ex Executor) (interface{}, error) { return ex.Call("info") },
			expect:  map[string]interface{}{"name": "halspa", "pins": []interface{}{int64(25), int64(26)}, "ok": nil},
		},
		{
			expr:    "machine.Pin(25)",
			printed: "Pin(GPIO25, mode=OUT)",
			call:    func(ex Executor) (interface{}, error) { return ex.Call("machine.Pin", 25) },
			expect:  "Pin(GPIO25, mode=OUT)",
		},
	}
	for _, c := range cases {
		t.Run(c.expr, func(t *testing.T) {
			r := newFakeRemote(printer(map[string]string{
				"print(repr(" + c.expr + "))": c.printed + "\r\n",
			}))
			s := newTestSession(r)
			v, err := c.call(s)
			require.NoError(t, err)
			assert.Equal(t, c.expect, v)
		})
	}
}

func TestCallErrors(t *testing.T) {
	r := newFakeRemote(printer(nil))
	s := newTestSession(r)

	_, err := s.Call("not a name")
	assert.ErrorIs(t, err, ErrArgument)
	_, err = s.Call("f", make(chan int))
	assert.ErrorIs(t, err, ErrArgument)
	assert.Zero(t, r.written)

	_, err = s.Call("f")
	var remoteErr *RemoteError
	assert.ErrorAs(t, err, &remoteErr)
}

type recordingExecutor struct {
	code    string
	timeout time.Duration
	out     string
}

func (e *recordingExecutor) ExecuteTimeout(code string, timeout time.Duration) (string, error) {
	e.code, e.timeout = code, timeout
	return e.out, nil
}

func TestCallExecutor(t *testing.T) {
	ex := &recordingExecutor{out: "  (3, 4)\n"}
	v, err := Call(ex, "divmod", 19, 5)
	require.NoError(t, err)
	assert.Equal(t, "print(repr(divmod(19, 5)))", ex.code)
	assert.Zero(t, ex.timeout)
	assert.Equal(t, []interface{}{int64(3), int64(4)}, v)
}

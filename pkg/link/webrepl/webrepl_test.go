package webrepl

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/halspa/halspa.go/pkg/repl"
)

func fakeWebREPL(password string) websocket.Handler {
	return func(ws *websocket.Conn) {
		defer ws.Close()
		if websocket.Message.Send(ws, "Password: ") != nil {
			return
		}
		var got string
		if websocket.Message.Receive(ws, &got) != nil {
			return
		}
		if strings.TrimSpace(got) != password {
			websocket.Message.Send(ws, "\r\nAccess denied\r\n")
			return
		}
		websocket.Message.Send(ws, "\r\nWebREPL connected\r\n>>> ")
		for {
			var msg string
			if websocket.Message.Receive(ws, &msg) != nil {
				return
			}
			websocket.Message.Send(ws, "echo:"+msg)
		}
	}
}

func serve(t *testing.T, password string) string {
	srv := httptest.NewServer(fakeWebREPL(password))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func TestDialer(t *testing.T) {
	dial := Dialer(&Config{URL: serve(t, "secret"), Password: "secret"})
	ch, err := dial()
	require.NoError(t, err)
	defer ch.Close()
	ch.SetTimeout(time.Second)

	buf := make([]byte, 6)
	n, err := ch.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, "\r\n>>> ", string(buf[:n]))

	_, err = ch.Write([]byte{0x03})
	require.NoError(t, err)
	n, err = ch.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, "echo:\x03", string(buf[:n]))
}

func TestDialAccessDenied(t *testing.T) {
	_, err := Dial(&Config{URL: serve(t, "secret"), Password: "guess"})
	assert.Equal(t, ErrAccessDenied, err)

	_, err = Dialer(&Config{URL: serve(t, "secret"), Password: "guess"})()
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.ErrorIs(t, err, repl.ErrConnection)
}

func TestEndpoint(t *testing.T) {
	cases := map[string]string{
		"192.168.4.1":          "ws://192.168.4.1:8266/",
		"192.168.4.1:8000":     "ws://192.168.4.1:8000/",
		"jig.local":            "ws://jig.local:8266/",
		"ws://jig.local":       "ws://jig.local:8266/",
		"wss://jig.local:9/ws": "wss://jig.local:9/ws",
	}
	for in, expect := range cases {
		got, err := Endpoint(in)
		require.NoError(t, err, in)
		assert.Equal(t, expect, got, in)
	}
	_, err := Endpoint("http://jig.local")
	assert.Error(t, err)
}

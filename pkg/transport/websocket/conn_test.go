package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/eeprom.go/pkg/transport"
)

// echoServer echoes data envelopes and reports control envelopes on kinds.
func echoServer(kinds chan<- transport.Kind) *httptest.Server {
	return httptest.NewServer(websocket.Server{Handler: func(ws *websocket.Conn) {
		conn := Wrap(ws)
		for {
			e, err := conn.Receive()
			if err != nil {
				return
			}
			if e.Kind != transport.KindData {
				kinds <- e.Kind
				continue
			}
			if err := conn.Send(e); err != nil {
				return
			}
		}
	}})
}

func TestTransport(t *testing.T) {
	kinds := make(chan transport.Kind, 4)
	srv := echoServer(kinds)
	defer srv.Close()

	tr, err := Dial("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second)
	require.NoError(t, err)

	n, err := tr.Write([]byte{'r', 0, 1})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	data, err := tr.ReadExact(3, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{'r', 0, 1}, data)

	require.NoError(t, tr.ClearInput())
	require.Equal(t, transport.KindClearInput, <-kinds)
	require.NoError(t, tr.ClearOutput())
	require.Equal(t, transport.KindClearOutput, <-kinds)

	require.NoError(t, tr.Close())
	_, err = tr.ReadExact(1, time.Second)
	require.ErrorIs(t, err, transport.ErrClosed)
	_, err = tr.Write([]byte{1})
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestTransportPeerClose(t *testing.T) {
	srv := httptest.NewServer(websocket.Server{Handler: func(ws *websocket.Conn) {
		Wrap(ws).Send(transport.DataEnvelope([]byte{0x42}))
	}})
	defer srv.Close()

	tr, err := Dial("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second)
	require.NoError(t, err)
	defer tr.Close()
	data, err := tr.ReadExact(1, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0x42}, data)
	_, err = tr.ReadExact(1, time.Second)
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestDialError(t *testing.T) {
	_, err := Dial("ws://127.0.0.1:1/eeprom", 100*time.Millisecond)
	require.Error(t, err)
}

package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBufferReadExact(t *testing.T) {
	b := NewBuffer()
	n, err := b.Available()
	require.NoError(t, err)
	require.Zero(t, n)

	b.Feed([]byte{1, 2, 3})
	n, err = b.Available()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	p, err := b.ReadExact(2, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, p)

	resultCh := make(chan []byte, 1)
	go func() {
		p, err := b.ReadExact(3, time.Second)
		require.NoError(t, err)
		resultCh <- p
	}()
	b.Feed([]byte{4})
	b.Feed([]byte{5, 6})
	select {
	case p = <-resultCh:
		require.Equal(t, []byte{3, 4, 5}, p)
	case <-time.After(time.Second):
		t.Fatal("ReadExact not woken up")
	}
	n, err = b.Available()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestBufferTimeout(t *testing.T) {
	b := NewBuffer()
	b.Feed([]byte{1})
	start := time.Now()
	_, err := b.ReadExact(2, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.True(t, time.Since(start) >= 20*time.Millisecond)

	// the partial byte stays buffered.
	n, err := b.Available()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestBufferClose(t *testing.T) {
	b := NewBuffer()
	errCh := make(chan error, 1)
	go func() {
		_, err := b.ReadExact(1, 0)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.CloseWithError(nil)
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked reader not released on close")
	}

	// first close error wins.
	b.CloseWithError(errors.New("other"))
	require.Equal(t, ErrClosed, b.Err())
	b.Feed([]byte{1})
	_, err := b.Available()
	require.ErrorIs(t, err, ErrClosed)
}

func TestBufferClearInput(t *testing.T) {
	b := NewBuffer()
	b.Feed([]byte{1, 2, 3})
	require.NoError(t, b.ClearInput())
	n, err := b.Available()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStream(t *testing.T) {
	host, device := net.Pipe()
	s := NewStream(host)
	defer s.Close()

	go func() {
		buf := make([]byte, 3)
		n, _ := device.Read(buf)
		device.Write(buf[:n])
	}()
	_, err := s.Write([]byte{'r', 0, 1})
	require.NoError(t, err)
	p, err := s.ReadExact(3, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{'r', 0, 1}, p)

	device.Close()
	_, err = s.ReadExact(1, time.Second)
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Write([]byte{0})
	require.ErrorIs(t, err, ErrClosed)
}

func TestEnvelope(t *testing.T) {
	e := DataEnvelope([]byte{1, 2})
	require.Equal(t, []byte{0, 1, 2}, e.Bytes())
	decoded, err := DecodeEnvelope(e.Bytes())
	require.NoError(t, err)
	require.Equal(t, e, decoded)

	decoded, err = DecodeEnvelope(Envelope{Kind: KindClearInput}.Bytes())
	require.NoError(t, err)
	require.Equal(t, KindClearInput, decoded.Kind)

	_, err = DecodeEnvelope(nil)
	require.ErrorIs(t, err, ErrEmptyEnvelope)
	_, err = DecodeEnvelope([]byte{0x7f})
	require.Error(t, err)
	_, err = DecodeEnvelope([]byte{byte(KindClearOutput), 1})
	require.Error(t, err)
}

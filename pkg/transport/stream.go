package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Stream adapts a plain byte stream (TCP socket, pipe, USB CDC device
// opened as a file) into a transport. A background read loop feeds
// received bytes into the Buffer.
type Stream struct {
	*Buffer
	Conn io.ReadWriteCloser

	// held by the read loop from Read until the chunk is buffered.
	readLock  sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps conn and starts the read loop.
func NewStream(conn io.ReadWriteCloser) *Stream {
	s := &Stream{Buffer: NewBuffer(), Conn: conn}
	go s.readLoop()
	return s
}

// DialTCP connects to a raw TCP serial server (e.g. ser2net).
func DialTCP(addr string, timeout time.Duration) (*Stream, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	glog.V(1).Infof("connected %s", addr)
	return NewStream(conn), nil
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

func (s *Stream) readLoop() {
	buf := make([]byte, 256)
	for {
		s.readLock.Lock()
		n, err := s.Conn.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
		}
		s.readLock.Unlock()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// kicked by ClearInput.
				continue
			}
			if err == io.EOF {
				s.CloseWithError(ErrClosed)
			} else {
				s.CloseWithError(fmt.Errorf("%w: %v", ErrClosed, err))
			}
			return
		}
	}
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.Err(); err != nil {
		return 0, err
	}
	n, err := s.Conn.Write(p)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return n, err
}

// ClearInput discards buffered bytes, including a chunk the read loop
// has already read but not yet buffered.
func (s *Stream) ClearInput() error {
	return s.ClearInputFunc(nil)
}

// ClearInputFunc clears the input like ClearInput and calls flush, if not
// nil, while the read loop is parked, e.g. to discard bytes queued by the
// kernel. The read loop can only be parked if Conn supports read
// deadlines; otherwise a chunk in flight may still be buffered after the
// clear.
func (s *Stream) ClearInputFunc(flush func() error) error {
	if d, ok := s.Conn.(readDeadliner); ok && d.SetReadDeadline(time.Now()) == nil {
		s.readLock.Lock()
		defer s.readLock.Unlock()
		if err := d.SetReadDeadline(time.Time{}); err != nil {
			return err
		}
	}
	if flush != nil {
		if err := flush(); err != nil {
			return err
		}
	}
	return s.Buffer.ClearInput()
}

// ClearOutput is a no-op as written bytes are handed to the stream directly.
func (s *Stream) ClearOutput() error {
	return nil
}

// Close implements io.Closer.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.CloseWithError(ErrClosed)
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

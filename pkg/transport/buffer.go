package transport

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed indicates the transport is closed, either locally or by the peer.
	ErrClosed = errors.New("transport closed")
	// ErrTimeout indicates the requested bytes didn't arrive in time.
	ErrTimeout = errors.New("read timeout")
)

// Buffer is the receive side of a transport fed by chunks, e.g. a read
// loop or a message subscription. It answers the "bytes available"
// query without blocking and serves exact-size reads with a deadline.
type Buffer struct {
	lock   sync.Mutex
	data   []byte
	err    error
	notify chan struct{}
}

// NewBuffer creates a Buffer.
func NewBuffer() *Buffer {
	return &Buffer{notify: make(chan struct{})}
}

// Feed appends received bytes. Bytes fed after close are dropped.
func (b *Buffer) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.err != nil {
		return
	}
	b.data = append(b.data, p...)
	b.wakeUp()
}

// Available returns the number of bytes ready to be read.
// Once closed and drained, it returns the close error.
func (b *Buffer) Available() (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if len(b.data) == 0 && b.err != nil {
		return 0, b.err
	}
	return len(b.data), nil
}

// ReadExact blocks until n bytes are available, the buffer is closed or
// timeout elapses. A timeout <= 0 waits forever.
func (b *Buffer) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		b.lock.Lock()
		if len(b.data) >= n {
			out := make([]byte, n)
			copy(out, b.data)
			b.data = b.data[n:]
			b.lock.Unlock()
			return out, nil
		}
		if b.err != nil {
			err := b.err
			b.lock.Unlock()
			return nil, err
		}
		ch := b.notify
		b.lock.Unlock()

		select {
		case <-ch:
		case <-deadline:
			return nil, ErrTimeout
		}
	}
}

// ClearInput discards all buffered bytes.
func (b *Buffer) ClearInput() error {
	b.lock.Lock()
	b.data = nil
	b.lock.Unlock()
	return nil
}

// CloseWithError closes the buffer. Pending and future reads fail with
// err once buffered bytes are consumed. nil means ErrClosed.
// Only the first call takes effect.
func (b *Buffer) CloseWithError(err error) {
	if err == nil {
		err = ErrClosed
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.err == nil {
		b.err = err
		b.wakeUp()
	}
}

// Err returns the close error, nil if still open.
func (b *Buffer) Err() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.err
}

func (b *Buffer) wakeUp() {
	close(b.notify)
	b.notify = make(chan struct{})
}

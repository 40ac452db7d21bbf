// Package websocket carries device bytes over a websocket connection.
// Each binary message is one transport.Envelope.
package websocket

import (
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/eeprom.go/pkg/transport"
)

// Conn sends and receives envelopes on a websocket connection.
type Conn websocket.Conn

// Wrap wraps websocket.Conn.
func Wrap(conn *websocket.Conn) *Conn {
	return (*Conn)(conn)
}

// Receive reads the next valid envelope. Malformed messages are logged
// and skipped.
func (c *Conn) Receive() (transport.Envelope, error) {
	for {
		var msg []byte
		if err := websocket.Message.Receive((*websocket.Conn)(c), &msg); err != nil {
			return transport.Envelope{}, err
		}
		e, err := transport.DecodeEnvelope(msg)
		if err == nil {
			return e, nil
		}
		glog.Warningf("drop message: %v", err)
	}
}

// Send writes an envelope.
func (c *Conn) Send(e transport.Envelope) error {
	return websocket.Message.Send((*websocket.Conn)(c), e.Bytes())
}

// Close closes the connection.
func (c *Conn) Close() error {
	return (*websocket.Conn)(c).Close()
}

// Transport is the host side of a bridged device.
type Transport struct {
	*transport.Buffer
	Conn *Conn

	sendLock  sync.Mutex
	closeOnce sync.Once
}

// Dial connects to a bridge, e.g. ws://host:8080/eeprom.
func Dial(rawURL string, timeout time.Duration) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	origin := &url.URL{Scheme: "http", Host: u.Host}
	if u.Scheme == "wss" {
		origin.Scheme = "https"
	}
	config, err := websocket.NewConfig(u.String(), origin.String())
	if err != nil {
		return nil, err
	}
	config.Dialer = &net.Dialer{Timeout: timeout}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	glog.V(1).Infof("connected %s", rawURL)
	return New(Wrap(conn)), nil
}

// New creates a Transport on an established connection and starts the
// receive loop.
func New(conn *Conn) *Transport {
	t := &Transport{Buffer: transport.NewBuffer(), Conn: conn}
	go t.receiveLoop()
	return t
}

func (t *Transport) receiveLoop() {
	for {
		e, err := t.Conn.Receive()
		if err != nil {
			t.CloseWithError(fmt.Errorf("%w: %v", transport.ErrClosed, err))
			return
		}
		if e.Kind != transport.KindData {
			glog.Warningf("unexpected envelope kind %d from bridge", e.Kind)
			continue
		}
		t.Feed(e.Data)
	}
}

// Write implements io.Writer.
func (t *Transport) Write(p []byte) (int, error) {
	if err := t.send(transport.DataEnvelope(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ClearInput discards local bytes and asks the bridge to clear the device input.
func (t *Transport) ClearInput() error {
	t.Buffer.ClearInput()
	return t.send(transport.Envelope{Kind: transport.KindClearInput})
}

// ClearOutput asks the bridge to discard bytes not yet sent to the device.
func (t *Transport) ClearOutput() error {
	return t.send(transport.Envelope{Kind: transport.KindClearOutput})
}

func (t *Transport) send(e transport.Envelope) error {
	if err := t.Err(); err != nil {
		return err
	}
	t.sendLock.Lock()
	defer t.sendLock.Unlock()
	if err := t.Conn.Send(e); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	return nil
}

// Close implements io.Closer.
func (t *Transport) Close() (err error) {
	t.closeOnce.Do(func() {
		t.CloseWithError(transport.ErrClosed)
		err = t.Conn.Close()
	})
	return
}

package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/transport"
)

// ErrNoTopic indicates the URL doesn't name a device topic base.
var ErrNoTopic = errors.New("mqtt URL must include the device topic, e.g. mqtt://broker:1883/eeprom/bench1")

// Transport is the host side of a device bridged over MQTT.
type Transport struct {
	*transport.Buffer
	Queue *Queue

	closeOnce sync.Once
}

// Dial connects to the broker in brokerURL. clientID is used when the URL
// doesn't specify one.
func Dial(brokerURL, clientID string, timeout time.Duration) (*Transport, error) {
	opts, base, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if base == "" {
		return nil, ErrNoTopic
	}
	if opts.ClientID == "" {
		opts.SetClientID(clientID)
	}
	t := NewTransport(NewQueue(opts, base))
	if err := t.Queue.Connect(timeout); err != nil {
		return nil, fmt.Errorf("connect %s: %w", brokerURL, err)
	}
	return t, nil
}

// NewTransport creates a Transport on q, which is connected afterwards.
func NewTransport(q *Queue) *Transport {
	t := &Transport{Buffer: transport.NewBuffer(), Queue: q}
	q.Sub(TopicRx, t.receive)
	return t
}

func (t *Transport) receive(payload []byte) {
	e, err := transport.DecodeEnvelope(payload)
	if err != nil {
		glog.Warningf("drop message: %v", err)
		return
	}
	if e.Kind != transport.KindData {
		glog.Warningf("unexpected envelope kind %d from bridge", e.Kind)
		return
	}
	t.Feed(e.Data)
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
	err := t.Queue.Pub(TopicTx, e.Bytes())
	if err == nil || errors.Is(err, transport.ErrTimeout) {
		return err
	}
	return fmt.Errorf("%w: %v", transport.ErrClosed, err)
}

// Close implements io.Closer.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.CloseWithError(transport.ErrClosed)
		t.Queue.Close()
	})
	return nil
}

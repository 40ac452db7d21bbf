package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/transport"
	"github.com/robotalks/eeprom.go/pkg/transport/mqtt"
)

// MQTTService serves the bridge on the topics of a broker. The session
// lasts as long as the service.
type MQTTService struct {
	Bridge      *Bridge
	URL         string
	ClientID    string
	DefaultBase string
	DialTimeout time.Duration
}

// Name implements framework.Named.
func (s *MQTTService) Name() string {
	return "mqtt"
}

// Run implements framework.Runnable.
func (s *MQTTService) Run(ctx context.Context) error {
	opts, base, err := mqtt.ClientOptionsFromURL(s.URL)
	if err != nil {
		return err
	}
	if base == "" {
		base = s.DefaultBase
	}
	if opts.ClientID == "" {
		opts.SetClientID(s.ClientID)
	}
	return s.Serve(ctx, mqtt.NewQueue(opts, base))
}

// Serve connects q and serves the bridge on its topics until ctx is done
// or the device fails.
func (s *MQTTService) Serve(ctx context.Context, q *mqtt.Queue) error {
	remote := newMQTTRemote(q)
	q.Sub(mqtt.TopicTx, remote.receive)
	if err := q.Connect(s.DialTimeout); err != nil {
		return err
	}
	defer q.Close()
	glog.Infof("serving on %s", q.Topic(mqtt.TopicTx))
	return s.Bridge.Serve(ctx, "mqtt", remote)
}

type mqttRemote struct {
	queue     *mqtt.Queue
	envelopes chan transport.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newMQTTRemote(q *mqtt.Queue) *mqttRemote {
	return &mqttRemote{
		queue:     q,
		envelopes: make(chan transport.Envelope, 1024),
		done:      make(chan struct{}),
	}
}

func (r *mqttRemote) receive(payload []byte) {
	e, err := transport.DecodeEnvelope(payload)
	if err != nil {
		glog.Warningf("drop message: %v", err)
		return
	}
	e.Data = append([]byte(nil), e.Data...)
	select {
	case r.envelopes <- e:
	case <-r.done:
	}
}

func (r *mqttRemote) Receive() (transport.Envelope, error) {
	select {
	case e := <-r.envelopes:
		return e, nil
	case <-r.done:
		return transport.Envelope{}, transport.ErrClosed
	}
}

func (r *mqttRemote) Send(e transport.Envelope) error {
	return r.queue.Pub(mqtt.TopicRx, e.Bytes())
}

func (r *mqttRemote) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

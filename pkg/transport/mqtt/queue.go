// Package mqtt carries device bytes over a pair of MQTT topics.
//
// A device is addressed by a topic base, e.g. "eeprom/bench1". The host
// publishes envelopes on "<base>/tx" and receives device bytes on
// "<base>/rx".
package mqtt

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/transport"
)

// Topics relative to the base.
const (
	TopicTx = "tx"
	TopicRx = "rx"
)

// DefaultPublishTimeout bounds the wait for a message to be handed to
// the network.
const DefaultPublishTimeout = 5 * time.Second

// Handler is the callback when a message is received.
type Handler func(payload []byte)

// Queue wraps MQTT client, scoped to a topic base.
type Queue struct {
	Client         paho.Client
	Base           string
	OnConnect      func(*Queue)
	PublishTimeout time.Duration

	subsLock sync.RWMutex
	subs     map[string]Handler
}

// ClientOptionsFromURL creates ClientOptions from URL
// mqtt://[user:pass@]host:port/topic/base[?client-id=ID].
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	var server string
	switch u.Scheme {
	case "", "mqtt":
		server = "tcp"
	case "mqtts":
		server = "ssl"
	default:
		server = u.Scheme
	}
	server += "://" + u.Host

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, strings.Trim(u.Path, "/"), nil
}

// NewQueue creates Queue.
func NewQueue(options *paho.ClientOptions, base string) *Queue {
	q := NewQueueWithClient(nil, base)
	options.SetOnConnectHandler(q.onConnect)
	options.SetConnectionLostHandler(q.onConnectionLost)
	q.Client = paho.NewClient(options)
	return q
}

// NewQueueWithClient creates Queue on an existing client. Connect
// subscribes registered topics.
func NewQueueWithClient(client paho.Client, base string) *Queue {
	return &Queue{
		Client:         client,
		Base:           base,
		PublishTimeout: DefaultPublishTimeout,
		subs:           make(map[string]Handler),
	}
}

// Topic returns the absolute topic name.
func (q *Queue) Topic(topic string) string {
	if q.Base == "" {
		return topic
	}
	return q.Base + "/" + topic
}

// Connect connects the client and waits until registered topics are
// subscribed.
func (q *Queue) Connect(timeout time.Duration) error {
	token := q.Client.Connect()
	if !waitToken(token, timeout) {
		return fmt.Errorf("connect timeout after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return err
	}
	token = q.Resubscribe()
	if !waitToken(token, timeout) {
		return fmt.Errorf("subscribe timeout after %s", timeout)
	}
	return token.Error()
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(250)
	return nil
}

// Sub subscribes a relative topic, replacing any previous handler.
func (q *Queue) Sub(topic string, handler Handler) {
	q.subsLock.Lock()
	q.subs[topic] = handler
	q.subsLock.Unlock()
	if q.Client.IsConnected() {
		glog.V(2).Infof("SUB %q", q.Topic(topic))
		q.Client.Subscribe(q.Topic(topic), 0, q.dispatch)
	}
}

// Pub publishes to a relative topic and waits until the message is
// handed to the network. It fails with transport.ErrTimeout if that
// takes longer than PublishTimeout.
func (q *Queue) Pub(topic string, payload []byte) error {
	token := q.Client.Publish(q.Topic(topic), 0, false, payload)
	if !waitToken(token, q.PublishTimeout) {
		glog.Warningf("PUB %q not done after %s", q.Topic(topic), q.PublishTimeout)
		return transport.ErrTimeout
	}
	return token.Error()
}

// Resubscribe subscribes all registered topics.
func (q *Queue) Resubscribe() paho.Token {
	filters := make(map[string]byte)
	q.subsLock.RLock()
	for topic := range q.subs {
		filters[q.Topic(topic)] = 0
	}
	q.subsLock.RUnlock()
	if len(filters) == 0 {
		return &paho.DummyToken{}
	}
	for key := range filters {
		glog.V(2).Infof("SUB %q", key)
	}
	return q.Client.SubscribeMultiple(filters, q.dispatch)
}

func (q *Queue) onConnect(paho.Client) {
	glog.Infof("connected, topic base %q", q.Base)
	q.Resubscribe()
	if h := q.OnConnect; h != nil {
		h(q)
	}
}

func (q *Queue) onConnectionLost(c paho.Client, err error) {
	glog.Warningf("connection lost: %v", err)
}

func (q *Queue) dispatch(c paho.Client, msg paho.Message) {
	topic, ok := q.relative(msg.Topic())
	if !ok {
		return
	}
	glog.V(3).Infof("RCV %q %d bytes", msg.Topic(), len(msg.Payload()))
	q.subsLock.RLock()
	h := q.subs[topic]
	q.subsLock.RUnlock()
	if h != nil {
		h(msg.Payload())
	}
}

func (q *Queue) relative(topic string) (string, bool) {
	if q.Base == "" {
		return topic, true
	}
	if !strings.HasPrefix(topic, q.Base+"/") {
		return "", false
	}
	return topic[len(q.Base)+1:], true
}

func waitToken(token paho.Token, timeout time.Duration) bool {
	if timeout <= 0 {
		return token.Wait()
	}
	return token.WaitTimeout(timeout)
}

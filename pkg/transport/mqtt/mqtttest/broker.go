// Package mqtttest provides an in-memory broker and clients implementing
// paho.Client for tests which don't need a network broker.
package mqtttest

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Broker routes messages between its clients. Topics match exactly,
// wildcards are not supported.
type Broker struct {
	lock      sync.Mutex
	subs      map[string]map[*Client]paho.MessageHandler
	published map[string][][]byte
}

// NewBroker creates a Broker.
func NewBroker() *Broker {
	return &Broker{
		subs:      make(map[string]map[*Client]paho.MessageHandler),
		published: make(map[string][][]byte),
	}
}

// NewClient creates a disconnected client of the broker.
func (b *Broker) NewClient() *Client {
	return &Client{broker: b}
}

// Published returns the payloads published on topic, in order.
func (b *Broker) Published(topic string) [][]byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([][]byte(nil), b.published[topic]...)
}

// Subscribed returns true if any client subscribed topic.
func (b *Broker) Subscribed(topic string) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.subs[topic]) > 0
}

func (b *Broker) subscribe(c *Client, topic string, handler paho.MessageHandler) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Client]paho.MessageHandler)
	}
	b.subs[topic][c] = handler
}

func (b *Broker) unsubscribe(c *Client, topics ...string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if len(topics) == 0 {
		for _, clients := range b.subs {
			delete(clients, c)
		}
		return
	}
	for _, topic := range topics {
		delete(b.subs[topic], c)
	}
}

// publish delivers synchronously so per-topic order is kept.
func (b *Broker) publish(topic string, payload []byte) paho.Token {
	b.lock.Lock()
	b.published[topic] = append(b.published[topic], payload)
	type delivery struct {
		client  *Client
		handler paho.MessageHandler
	}
	var deliveries []delivery
	for c, h := range b.subs[topic] {
		deliveries = append(deliveries, delivery{client: c, handler: h})
	}
	b.lock.Unlock()

	for _, d := range deliveries {
		d.handler(d.client, &message{topic: topic, payload: payload})
	}
	return doneToken(nil)
}

// Client is a paho.Client connected to a Broker.
type Client struct {
	broker *Broker

	lock      sync.Mutex
	connected bool
	stalled   bool
}

// Stall makes publishes of this client hang without completing their
// tokens, like a stuck broker link. Messages are not delivered while
// stalled.
func (c *Client) Stall(stalled bool) {
	c.lock.Lock()
	c.stalled = stalled
	c.lock.Unlock()
}

// IsConnected implements paho.Client.
func (c *Client) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

// IsConnectionOpen implements paho.Client.
func (c *Client) IsConnectionOpen() bool {
	return c.IsConnected()
}

// Connect implements paho.Client.
func (c *Client) Connect() paho.Token {
	c.lock.Lock()
	c.connected = true
	c.lock.Unlock()
	return doneToken(nil)
}

// Disconnect implements paho.Client.
func (c *Client) Disconnect(quiesce uint) {
	c.lock.Lock()
	c.connected = false
	c.lock.Unlock()
	c.broker.unsubscribe(c)
}

// Publish implements paho.Client.
func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.lock.Lock()
	connected, stalled := c.connected, c.stalled
	c.lock.Unlock()
	if !connected {
		return doneToken(paho.ErrNotConnected)
	}
	if stalled {
		return newToken()
	}
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = append([]byte(nil), p...)
	case string:
		data = []byte(p)
	}
	return c.broker.publish(topic, data)
}

// Subscribe implements paho.Client.
func (c *Client) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.broker.subscribe(c, topic, callback)
	return doneToken(nil)
}

// SubscribeMultiple implements paho.Client.
func (c *Client) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	for topic := range filters {
		c.broker.subscribe(c, topic, callback)
	}
	return doneToken(nil)
}

// Unsubscribe implements paho.Client.
func (c *Client) Unsubscribe(topics ...string) paho.Token {
	if len(topics) > 0 {
		c.broker.unsubscribe(c, topics...)
	}
	return doneToken(nil)
}

// AddRoute implements paho.Client. Routes are not supported.
func (c *Client) AddRoute(topic string, callback paho.MessageHandler) {}

// OptionsReader implements paho.Client.
func (c *Client) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

type token struct {
	done chan struct{}
	err  error
}

func newToken() *token {
	return &token{done: make(chan struct{})}
}

func doneToken(err error) *token {
	t := &token{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *token) Wait() bool {
	<-t.done
	return true
}

func (t *token) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

func (t *token) Error() error {
	return t.err
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 0 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}

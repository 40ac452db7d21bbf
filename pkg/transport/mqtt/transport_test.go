package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eeprom.go/pkg/transport"
	"github.com/robotalks/eeprom.go/pkg/transport/mqtt/mqtttest"
)

const testBase = "eeprom/bench1"

func newTestTransport(t *testing.T, broker *mqtttest.Broker) *Transport {
	tr := NewTransport(NewQueueWithClient(broker.NewClient(), testBase))
	require.NoError(t, tr.Queue.Connect(time.Second))
	require.True(t, broker.Subscribed(testBase+"/"+TopicRx))
	return tr
}

func TestTransportReceive(t *testing.T) {
	broker := mqtttest.NewBroker()
	tr := newTestTransport(t, broker)
	defer tr.Close()

	peer := broker.NewClient()
	peer.Connect()
	rx := testBase + "/" + TopicRx
	peer.Publish(rx, 0, false, transport.DataEnvelope([]byte{1, 2}).Bytes())
	peer.Publish(rx, 0, false, []byte{})
	peer.Publish(rx, 0, false, transport.Envelope{Kind: transport.KindClearInput}.Bytes())
	peer.Publish(rx, 0, false, []byte{0x7f, 9})
	peer.Publish("eeprom/other/rx", 0, false, transport.DataEnvelope([]byte{9}).Bytes())
	peer.Publish(rx, 0, false, transport.DataEnvelope([]byte{3}).Bytes())

	n, err := tr.Available()
	require.NoError(t, err)
	require.Equal(t, 3, n)
	data, err := tr.ReadExact(3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestTransportSend(t *testing.T) {
	broker := mqtttest.NewBroker()
	tr := newTestTransport(t, broker)
	defer tr.Close()

	peer := broker.NewClient()
	peer.Connect()
	peer.Publish(testBase+"/"+TopicRx, 0, false, transport.DataEnvelope([]byte{0xaa}).Bytes())

	n, err := tr.Write([]byte{'r', 0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, tr.ClearInput())
	require.NoError(t, tr.ClearOutput())

	n, err = tr.Available()
	require.NoError(t, err)
	assert.Zero(t, n, "stale bytes survived ClearInput")
	assert.Equal(t, [][]byte{
		{byte(transport.KindData), 'r', 0x01, 0x00},
		{byte(transport.KindClearInput)},
		{byte(transport.KindClearOutput)},
	}, broker.Published(testBase+"/"+TopicTx))
}

func TestTransportPublishTimeout(t *testing.T) {
	broker := mqtttest.NewBroker()
	tr := newTestTransport(t, broker)
	defer tr.Close()
	tr.Queue.PublishTimeout = 20 * time.Millisecond

	tr.Queue.Client.(*mqtttest.Client).Stall(true)
	start := time.Now()
	_, err := tr.Write([]byte{'r', 0, 0})
	require.ErrorIs(t, err, transport.ErrTimeout)
	assert.True(t, time.Since(start) < time.Second)
	require.ErrorIs(t, tr.ClearInput(), transport.ErrTimeout)
}

func TestTransportClose(t *testing.T) {
	broker := mqtttest.NewBroker()
	tr := newTestTransport(t, broker)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.False(t, broker.Subscribed(testBase+"/"+TopicRx))

	_, err := tr.Write([]byte{'r', 0, 0})
	require.ErrorIs(t, err, transport.ErrClosed)
	_, err = tr.ReadExact(1, time.Second)
	require.ErrorIs(t, err, transport.ErrClosed)
}

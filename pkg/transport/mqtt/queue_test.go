package mqtt

import (
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptionsFromURL(t *testing.T) {
	testCases := []struct {
		url      string
		broker   string
		base     string
		user     string
		password string
		clientID string
	}{
		{"mqtt://localhost:1883/eeprom/bench1", "tcp://localhost:1883", "eeprom/bench1", "", "", ""},
		{"mqtts://u:p@broker:8883/eeprom/x/", "ssl://broker:8883", "eeprom/x", "u", "p", ""},
		{"tcp://broker:1883?client-id=eepromctl", "tcp://broker:1883", "", "", "", "eepromctl"},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			opts, base, err := ClientOptionsFromURL(tc.url)
			require.NoError(t, err)
			require.Len(t, opts.Servers, 1)
			assert.Equal(t, tc.broker, opts.Servers[0].String())
			assert.Equal(t, tc.base, base)
			assert.Equal(t, tc.user, opts.Username)
			assert.Equal(t, tc.password, opts.Password)
			assert.Equal(t, tc.clientID, opts.ClientID)
		})
	}
}

func TestQueueTopics(t *testing.T) {
	q := NewQueue(paho.NewClientOptions(), "eeprom/bench1")
	assert.Equal(t, "eeprom/bench1/tx", q.Topic(TopicTx))
	topic, ok := q.relative("eeprom/bench1/rx")
	assert.True(t, ok)
	assert.Equal(t, TopicRx, topic)
	_, ok = q.relative("eeprom/bench10/rx")
	assert.False(t, ok)

	q = NewQueue(paho.NewClientOptions(), "")
	assert.Equal(t, "rx", q.Topic(TopicRx))
}

func TestDialWithoutTopic(t *testing.T) {
	_, err := Dial("mqtt://localhost:1883", "test", 0)
	require.ErrorIs(t, err, ErrNoTopic)
}

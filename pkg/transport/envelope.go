package transport

import (
	"errors"
	"fmt"
)

// Kind is the type of a bridged message.
type Kind byte

// Message kinds exchanged with a bridge.
const (
	// KindData carries raw device bytes.
	KindData Kind = 0x00
	// KindClearInput asks the bridge to discard the device's pending input.
	KindClearInput Kind = 0x01
	// KindClearOutput asks the bridge to discard bytes not yet sent to the device.
	KindClearOutput Kind = 0x02
)

// ErrEmptyEnvelope indicates a message without a kind byte.
var ErrEmptyEnvelope = errors.New("empty envelope")

// Envelope is a message relayed through a bridge. Message oriented links
// (websocket, MQTT) carry one envelope per message: a kind byte
// followed by the payload.
type Envelope struct {
	Kind Kind
	Data []byte
}

// DataEnvelope wraps device bytes.
func DataEnvelope(p []byte) Envelope {
	return Envelope{Kind: KindData, Data: p}
}

// Bytes returns encoded bytes for sending.
func (e Envelope) Bytes() []byte {
	b := make([]byte, len(e.Data)+1)
	b[0] = byte(e.Kind)
	copy(b[1:], e.Data)
	return b
}

// DecodeEnvelope decodes a received message.
func DecodeEnvelope(msg []byte) (Envelope, error) {
	if len(msg) == 0 {
		return Envelope{}, ErrEmptyEnvelope
	}
	e := Envelope{Kind: Kind(msg[0]), Data: msg[1:]}
	switch e.Kind {
	case KindData:
	case KindClearInput, KindClearOutput:
		if len(e.Data) != 0 {
			return Envelope{}, fmt.Errorf("control envelope %d with %d bytes payload", e.Kind, len(e.Data))
		}
	default:
		return Envelope{}, fmt.Errorf("unknown envelope kind %d", e.Kind)
	}
	return e, nil
}

package msg

import (
	"encoding/json"
	"fmt"
)

// Codec packs messages into opaque blobs and back.
type Codec interface {
	Pack(m *Msg) ([]byte, error)
	Unpack(b []byte) (*Msg, error)
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

// Pack serializes m.
func (JSONCodec) Pack(m *Msg) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("nil message")
	}
	return json.Marshal(m)
}

// Unpack deserializes b and checks that the payload matches the type.
func (JSONCodec) Unpack(b []byte) (*Msg, error) {
	var m Msg
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	switch m.Type {
	case TypeSMS:
		if m.SMS == nil {
			return nil, fmt.Errorf("sms message without sms payload")
		}
	case TypeAck:
		if m.Ack == nil {
			return nil, fmt.Errorf("ack message without ack payload")
		}
	case TypeAdmin, TypeHeartbeat:
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
	return &m, nil
}

var _ Codec = JSONCodec{}

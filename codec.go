package appbus

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Codec is the Strategy for encoding/decoding payloads on the wire.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the default JSON implementation.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// EncodeEvent wraps e into a Message named after its kind.
func EncodeEvent(c Codec, e Event, producedAt time.Time, meta map[string]string) (*Message, error) {
	if e == nil {
		return nil, ErrNilEvent
	}
	if c == nil {
		c = JSONCodec{}
	}
	data, err := c.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Kind(), err)
	}
	return &Message{
		Name:       string(e.Kind()),
		Payload:    data,
		Metadata:   meta,
		ProducedAt: producedAt,
	}, nil
}

// DecodeEvent rebuilds the Event carried by msg using the kind registry.
// Kinds this process does not know yield ErrUnknownKind, which consumers
// are expected to skip.
func DecodeEvent(c Codec, msg *Message) (Event, error) {
	if msg == nil {
		return nil, ErrNilEvent
	}
	zero, err := NewEvent(Kind(msg.Name))
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = JSONCodec{}
	}
	if len(msg.Payload) == 0 {
		return zero, nil
	}
	ptr := reflect.New(reflect.TypeOf(zero))
	if err := c.Unmarshal(msg.Payload, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Name, err)
	}
	ev, ok := ptr.Elem().Interface().(Event)
	if !ok {
		return nil, fmt.Errorf("decode %s: not an event", msg.Name)
	}
	return ev, nil
}

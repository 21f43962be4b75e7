// Package protocol defines the messages exchanged with a room server.
//
// Every frame is a JSON object carrying a "type" tag next to its payload
// fields. Each game mode owns two closed sets of messages, one per direction,
// expressed as sealed interfaces (GuessDrawClient, GuessDrawServer, ...).
// Messages that several modes share, such as the stroke messages, implement
// the marker of every family they belong to.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrMalformedFrame = errors.New("malformed frame")
)

type Mode string

const (
	ModeGuessDraw  Mode = "guess-draw"
	ModeColorClash Mode = "color-clash"
	ModeWhiteboard Mode = "whiteboard"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeGuessDraw, ModeColorClash, ModeWhiteboard:
		return true
	}
	return false
}

// Message is implemented by every wire message.
type Message interface {
	Type() string
}

// Encode renders m as {"type": m.Type(), ...payload}.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("encode: nil message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: payload is not an object: %w", m.Type(), err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	tag, _ := json.Marshal(m.Type())
	fields["type"] = tag
	return json.Marshal(fields)
}

// PeekType returns the type tag of a frame without decoding its payload.
func PeekType(data []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env.Type, nil
}

type decodeFunc[M Message] func([]byte) (M, error)

// Codec decodes frames belonging to one closed message set.
type Codec[M Message] struct {
	mode  Mode
	kinds map[string]decodeFunc[M]
}

func newCodec[M Message](mode Mode, kinds map[string]decodeFunc[M]) *Codec[M] {
	return &Codec[M]{mode: mode, kinds: kinds}
}

func (c *Codec[M]) Mode() Mode { return c.mode }

// Knows reports whether tag belongs to the codec's message set.
func (c *Codec[M]) Knows(tag string) bool {
	_, ok := c.kinds[tag]
	return ok
}

// Decode maps a frame onto its variant. Frames whose tag is not part of the
// set fail with ErrUnknownType; unparsable frames fail with ErrMalformedFrame.
func (c *Codec[M]) Decode(data []byte) (M, error) {
	var zero M
	tag, err := PeekType(data)
	if err != nil {
		return zero, err
	}
	dec, ok := c.kinds[tag]
	if !ok {
		return zero, fmt.Errorf("%w: %q in %s", ErrUnknownType, tag, c.mode)
	}
	m, err := dec(data)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, tag, err)
	}
	return m, nil
}

func decodeAs[M Message, T Message](data []byte) (M, error) {
	var zero M
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, err
	}
	m, ok := any(v).(M)
	if !ok {
		return zero, fmt.Errorf("%s does not belong to this message set", v.Type())
	}
	return m, nil
}

// ClientKnows reports whether tag is a client→server message in mode.
func ClientKnows(mode Mode, tag string) bool {
	switch mode {
	case ModeGuessDraw:
		return GuessDrawClientCodec().Knows(tag)
	case ModeColorClash:
		return ColorClashClientCodec().Knows(tag)
	case ModeWhiteboard:
		return WhiteboardClientCodec().Knows(tag)
	}
	return false
}

// DecodeClient decodes a client→server frame of mode.
func DecodeClient(mode Mode, data []byte) (Message, error) {
	var (
		m   Message
		err error
	)
	switch mode {
	case ModeGuessDraw:
		m, err = GuessDrawClientCodec().Decode(data)
	case ModeColorClash:
		m, err = ColorClashClientCodec().Decode(data)
	case ModeWhiteboard:
		m, err = WhiteboardClientCodec().Decode(data)
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrUnknownType, mode)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

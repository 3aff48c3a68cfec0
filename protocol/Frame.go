package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Frame is the envelope of every websocket text message: {"event": "...", "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Encode(name string, payload interface{}) ([]byte, error) {
	if name == "" {
		return nil, errors.Wrap(ErrMalformedFrame, "empty event name")
	}
	var data json.RawMessage
	if payload == nil {
		data = json.RawMessage("{}")
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "encode payload of %s", name)
		}
		data = raw
	}
	return json.Marshal(Frame{Event: name, Data: data})
}

func EncodeCommand(cmd Command, payload interface{}) ([]byte, error) {
	return Encode(string(cmd), payload)
}

func Decode(raw []byte) (*Frame, error) {
	frame := &Frame{}
	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	if frame.Event == "" {
		return nil, errors.Wrap(ErrMalformedFrame, "missing event name")
	}
	return frame, nil
}

// DecodePayload unmarshals frame data into v and runs its validation.
func DecodePayload(data json.RawMessage, v Validatable) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.Wrap(ErrMalformedPayload, "empty payload")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return errors.Wrap(ErrMalformedPayload, err.Error())
	}
	return v.Validate()
}

type Validatable interface {
	Validate() error
}

func missing(field string) error {
	return errors.Wrapf(ErrMalformedPayload, "missing %s", field)
}

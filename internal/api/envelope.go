package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope declares how an endpoint wraps its list payload.
type Envelope int

const (
	// EnvelopeAuto accepts both a bare array and {"data": [...]}.
	EnvelopeAuto Envelope = iota
	// EnvelopeBare expects a top-level JSON array.
	EnvelopeBare
	// EnvelopeData expects an object whose "data" field holds the array.
	EnvelopeData
)

func (e Envelope) String() string {
	switch e {
	case EnvelopeBare:
		return "bare"
	case EnvelopeData:
		return "data"
	default:
		return "auto"
	}
}

var (
	errNotArray     = errors.New("expected a JSON array")
	errNotEnvelope  = errors.New(`expected an object with a "data" field`)
	errMissingData  = errors.New(`envelope has no "data" field`)
	errEmptyPayload = errors.New("empty response body")
)

// Unwrap returns the raw JSON array carried by body under the declared
// envelope. A null array (bare or under "data") is returned as an empty one.
func Unwrap(body []byte, shape Envelope) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errEmptyPayload
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON body")
	}

	switch body[0] {
	case '[':
		if shape == EnvelopeData {
			return nil, errNotEnvelope
		}
		return json.RawMessage(body), nil
	case '{':
		if shape == EnvelopeBare {
			return nil, errNotArray
		}
		var env map[string]json.RawMessage
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, err
		}
		raw, ok := env["data"]
		if !ok {
			return nil, errMissingData
		}
		data := bytes.TrimSpace(raw)
		if bytes.Equal(data, []byte("null")) {
			return json.RawMessage("[]"), nil
		}
		if len(data) == 0 || data[0] != '[' {
			return nil, errNotArray
		}
		return json.RawMessage(data), nil
	case 'n':
		if shape == EnvelopeData {
			return nil, errNotEnvelope
		}
		return json.RawMessage("[]"), nil
	default:
		if shape == EnvelopeData {
			return nil, errNotEnvelope
		}
		return nil, errNotArray
	}
}

// Decode unwraps body and decodes its records.
func Decode[T any](body []byte, shape Envelope) ([]T, error) {
	raw, err := Unwrap(body, shape)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return out, nil
}

package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload is returned when a payload can't be given a canonical form.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload represents the opaque content carried by a block. The only thing
// the blockchain needs from a payload is a byte form that never changes for
// the same content, since those bytes are part of the block digest.
type Payload interface {
	CanonicalBytes() []byte
}

// =============================================================================

// Text is a payload holding a plain string. Its canonical form is the JSON
// encoding of the string.
type Text string

// CanonicalBytes implements the Payload interface.
func (t Text) CanonicalBytes() []byte {
	data, _ := encode(string(t))
	return data
}

// =============================================================================

// Fields is a payload holding a JSON object. The canonical form is compact
// JSON with object keys sorted, numbers in their shortest form and no HTML
// escaping. Fields values are immutable once constructed.
type Fields struct {
	data []byte
}

// NewFields constructs a Fields payload from the map. Values must be
// representable as JSON.
func NewFields(m map[string]any) (Fields, error) {
	if m == nil {
		return Fields{}, fmt.Errorf("%w: nil fields", ErrInvalidPayload)
	}

	data, err := encode(m)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}

	return canonicalFields(data)
}

// MustFields is like NewFields but panics if the map can't be encoded.
func MustFields(m map[string]any) Fields {
	f, err := NewFields(m)
	if err != nil {
		panic(err)
	}

	return f
}

// CanonicalBytes implements the Payload interface.
func (f Fields) CanonicalBytes() []byte {
	if f.data == nil {
		return []byte("{}")
	}

	return bytes.Clone(f.data)
}

// MarshalJSON implements the json.Marshaler interface.
func (f Fields) MarshalJSON() ([]byte, error) {
	return f.CanonicalBytes(), nil
}

// String implements the fmt.Stringer interface.
func (f Fields) String() string {
	return string(f.CanonicalBytes())
}

// =============================================================================

// ParsePayload constructs a payload from its JSON form. A JSON string becomes
// Text and a JSON object becomes Fields.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
		}
		return Text(s), nil

	case '{':
		return canonicalFields(raw)
	}

	return nil, fmt.Errorf("%w: must be a JSON string or object", ErrInvalidPayload)
}

// canonicalFields decodes the JSON object and encodes it again so the
// resulting bytes are in canonical form.
func canonicalFields(raw []byte) (Fields, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Fields{}, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	if m == nil {
		return Fields{}, fmt.Errorf("%w: not an object", ErrInvalidPayload)
	}

	data, err := encode(m)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}

	return Fields{data: data}, nil
}

// encode marshals the value without HTML escaping and without the trailing
// newline the encoder adds. Map keys are sorted by the json package.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

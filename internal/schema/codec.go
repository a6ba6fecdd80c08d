// Package schema defines the out-of-scope schema codec contract the
// parallel transform samples against: decode once, optionally validate a
// sampled fraction of traffic, never fail a record because validation
// failed.
package schema

import (
	"encoding/json"
	"fmt"
)

// Codec decodes a raw record payload into a value processors can read and,
// separately, validates an already-decoded value. Real schema codecs
// (JSON-Schema, protobuf descriptors, ...) live outside this repository;
// this package ships only the passthrough codec used for tests and as a
// default.
type Codec interface {
	Decode(raw []byte) (any, error)
	Validate(decoded any) error
}

// PassthroughCodec decodes arbitrary JSON objects and validates only that
// the result is a JSON object (not an array, scalar, or null). It exists
// to exercise the validation-sampling code paths without depending on a
// real schema engine.
type PassthroughCodec struct{}

func NewPassthroughCodec() *PassthroughCodec {
	return &PassthroughCodec{}
}

func (PassthroughCodec) Decode(raw []byte) (any, error) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func (PassthroughCodec) Validate(decoded any) error {
	m, ok := decoded.(map[string]any)
	if !ok {
		return fmt.Errorf("schema: expected a JSON object, got %T", decoded)
	}
	if m == nil {
		return fmt.Errorf("schema: expected a JSON object, got null")
	}
	return nil
}

// Registry resolves a Codec by logical topic name, mirroring the original
// system's per-topic codec lookup. A single PassthroughCodec instance is
// safe to share across topics since it carries no state.
type Registry struct {
	byTopic map[string]Codec
	fallback Codec
}

func NewRegistry(fallback Codec) *Registry {
	if fallback == nil {
		fallback = NewPassthroughCodec()
	}
	return &Registry{byTopic: make(map[string]Codec), fallback: fallback}
}

func (r *Registry) Register(topic string, codec Codec) {
	r.byTopic[topic] = codec
}

func (r *Registry) Get(topic string) Codec {
	if codec, ok := r.byTopic[topic]; ok {
		return codec
	}
	return r.fallback
}

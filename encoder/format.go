package encoder

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Resolver resolves message and extension types for the JSON and text formats,
// e.g. when expanding google.protobuf.Any values or bracketed extension names.
type Resolver interface {
	protoregistry.MessageTypeResolver
	protoregistry.ExtensionTypeResolver
}

func asMessage(v any) (proto.Message, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("encoder: value does not implement proto.Message: %T", v)
	}
	return m, nil
}

// JSONEncoder is the canonical Protobuf JSON codec.
type JSONEncoder struct {
	Resolver       Resolver // Optional; protoregistry.GlobalTypes when nil.
	DiscardUnknown bool     // Ignore unknown JSON fields when parsing.
}

func (JSONEncoder) ContentType() string { return "application/json" }

func (e JSONEncoder) Marshal(v any) ([]byte, error) {
	m, err := asMessage(v)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Resolver: e.Resolver}.Marshal(m)
}

func (e JSONEncoder) Unmarshal(data []byte, out any) error {
	m, err := asMessage(out)
	if err != nil {
		return err
	}
	return protojson.UnmarshalOptions{
		Resolver:       e.Resolver,
		DiscardUnknown: e.DiscardUnknown,
	}.Unmarshal(data, m)
}

// TextEncoder is the Protobuf text format codec.
type TextEncoder struct {
	Resolver    Resolver // Optional; protoregistry.GlobalTypes when nil.
	EmitUnknown bool     // Print unknown fields when marshaling.
}

func (TextEncoder) ContentType() string { return "text/plain" }

func (e TextEncoder) Marshal(v any) ([]byte, error) {
	m, err := asMessage(v)
	if err != nil {
		return nil, err
	}
	return prototext.MarshalOptions{
		Resolver:    e.Resolver,
		EmitUnknown: e.EmitUnknown,
	}.Marshal(m)
}

func (e TextEncoder) Unmarshal(data []byte, out any) error {
	m, err := asMessage(out)
	if err != nil {
		return err
	}
	return prototext.UnmarshalOptions{Resolver: e.Resolver}.Unmarshal(data, m)
}

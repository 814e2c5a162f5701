package encoder

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtoMarshaler is the interface implemented by types that can marshal themselves into valid Protobuf.
type ProtoMarshaler interface {
	MarshalProto() ([]byte, error)
}

// ProtoUnmarshaler is the interface implemented by types that can unmarshal a Protobuf description of themselves.
type ProtoUnmarshaler interface {
	UnmarshalProto([]byte) error
}

// ProtoMarshal returns the Protobuf encoding of v.
func ProtoMarshal(v ProtoMarshaler) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("encoder: cannot marshal nil value")
	}
	return v.MarshalProto()
}

// ProtoUnmarshal parses the encoded Protobuf data and stores the result in the value pointed to by v.
func ProtoUnmarshal(data []byte, v ProtoUnmarshaler) error {
	if v == nil {
		return fmt.Errorf("encoder: cannot unmarshal into nil value")
	}
	return v.UnmarshalProto(data)
}

// ProtoEncoder is the binary Protobuf codec.
// Values are either proto.Message or types implementing ProtoMarshaler/ProtoUnmarshaler.
type ProtoEncoder struct {
	Deterministic  bool // Stable map ordering in the output.
	DiscardUnknown bool
}

func (ProtoEncoder) ContentType() string { return "application/x-protobuf" }

func (e ProtoEncoder) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case proto.Message:
		return proto.MarshalOptions{Deterministic: e.Deterministic}.Marshal(m)
	case ProtoMarshaler:
		return ProtoMarshal(m)
	default:
		return nil, fmt.Errorf("encoder: value does not implement proto.Message or ProtoMarshaler: %T", v)
	}
}

func (e ProtoEncoder) Unmarshal(data []byte, out any) error {
	switch m := out.(type) {
	case proto.Message:
		return proto.UnmarshalOptions{DiscardUnknown: e.DiscardUnknown}.Unmarshal(data, m)
	case ProtoUnmarshaler:
		return ProtoUnmarshal(data, m)
	default:
		return fmt.Errorf("encoder: target does not implement proto.Message or ProtoUnmarshaler: %T", out)
	}
}

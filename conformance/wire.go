package conformance

import (
	"fmt"

	"github.com/holmberd/go-protoconform/schema"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var requestPayloadFields = map[protoreflect.Name]WireFormat{
	"protobuf_payload": WireFormatProtobuf,
	"json_payload":     WireFormatJSON,
	"jspb_payload":     WireFormatJSPB,
	"text_payload":     WireFormatText,
}

var responsePayloadFields = map[WireFormat]protoreflect.Name{
	WireFormatProtobuf: "protobuf_payload",
	WireFormatJSON:     "json_payload",
	WireFormatJSPB:     "jspb_payload",
	WireFormatText:     "text_payload",
}

var responseMessageFields = map[ResultKind]protoreflect.Name{
	ResultParseError:     "parse_error",
	ResultSerializeError: "serialize_error",
	ResultRuntimeError:   "runtime_error",
	ResultTimeoutError:   "timeout_error",
	ResultSkipped:        "skipped",
}

func newEnvelope(reg *schema.Registry, name protoreflect.FullName) (protoreflect.Message, error) {
	if reg == nil {
		reg = schema.Default()
	}
	mt, err := reg.FindMessageType(name)
	if err != nil {
		return nil, fmt.Errorf("conformance: %w", err)
	}
	return mt.New(), nil
}

func payloadValue(fd protoreflect.FieldDescriptor, payload []byte) protoreflect.Value {
	if fd.Kind() == protoreflect.BytesKind {
		return protoreflect.ValueOfBytes(payload)
	}
	return protoreflect.ValueOfString(string(payload))
}

func payloadBytes(fd protoreflect.FieldDescriptor, v protoreflect.Value) []byte {
	if fd.Kind() == protoreflect.BytesKind {
		return v.Bytes()
	}
	return []byte(v.String())
}

// UnmarshalRequest parses a serialized ConformanceRequest.
// A nil registry selects schema.Default().
func UnmarshalRequest(data []byte, reg *schema.Registry) (*Request, error) {
	m, err := newEnvelope(reg, schema.ConformanceRequest)
	if err != nil {
		return nil, err
	}
	if err := proto.Unmarshal(data, m.Interface()); err != nil {
		return nil, fmt.Errorf("conformance: failed to unmarshal request: %w", err)
	}
	fields := m.Descriptor().Fields()
	req := &Request{
		MessageType:        m.Get(fields.ByName("message_type")).String(),
		OutputFormat:       WireFormat(m.Get(fields.ByName("requested_output_format")).Enum()),
		TestCategory:       TestCategory(m.Get(fields.ByName("test_category")).Enum()),
		PrintUnknownFields: m.Get(fields.ByName("print_unknown_fields")).Bool(),
	}
	if fd := m.WhichOneof(m.Descriptor().Oneofs().ByName("payload")); fd != nil {
		req.PayloadFormat = requestPayloadFields[fd.Name()]
		req.Payload = payloadBytes(fd, m.Get(fd))
	}
	return req, nil
}

// Marshal returns the ConformanceRequest encoding of r.
func (r *Request) Marshal(reg *schema.Registry) ([]byte, error) {
	m, err := newEnvelope(reg, schema.ConformanceRequest)
	if err != nil {
		return nil, err
	}
	fields := m.Descriptor().Fields()
	m.Set(fields.ByName("message_type"), protoreflect.ValueOfString(r.MessageType))
	m.Set(fields.ByName("requested_output_format"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(r.OutputFormat)))
	m.Set(fields.ByName("test_category"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(r.TestCategory)))
	m.Set(fields.ByName("print_unknown_fields"), protoreflect.ValueOfBool(r.PrintUnknownFields))
	if r.HasPayload() {
		name, ok := responsePayloadFields[r.PayloadFormat]
		if !ok {
			return nil, fmt.Errorf("conformance: unknown payload format %s", r.PayloadFormat)
		}
		fd := fields.ByName(name)
		m.Set(fd, payloadValue(fd, r.Payload))
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(m.Interface())
}

// Marshal returns the ConformanceResponse encoding of r.
func (r *Response) Marshal(reg *schema.Registry) ([]byte, error) {
	m, err := newEnvelope(reg, schema.ConformanceResponse)
	if err != nil {
		return nil, err
	}
	fields := m.Descriptor().Fields()
	switch r.Kind {
	case ResultPayload:
		name, ok := responsePayloadFields[r.Format]
		if !ok {
			return nil, fmt.Errorf("conformance: unknown payload format %s", r.Format)
		}
		fd := fields.ByName(name)
		m.Set(fd, payloadValue(fd, r.Payload))
	default:
		name, ok := responseMessageFields[r.Kind]
		if !ok {
			return nil, fmt.Errorf("conformance: unknown result kind %s", r.Kind)
		}
		m.Set(fields.ByName(name), protoreflect.ValueOfString(r.Message))
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(m.Interface())
}

// UnmarshalResponse parses a serialized ConformanceResponse.
func UnmarshalResponse(data []byte, reg *schema.Registry) (*Response, error) {
	m, err := newEnvelope(reg, schema.ConformanceResponse)
	if err != nil {
		return nil, err
	}
	if err := proto.Unmarshal(data, m.Interface()); err != nil {
		return nil, fmt.Errorf("conformance: failed to unmarshal response: %w", err)
	}
	fd := m.WhichOneof(m.Descriptor().Oneofs().ByName("result"))
	if fd == nil {
		return nil, fmt.Errorf("conformance: response has no result set")
	}
	for format, name := range responsePayloadFields {
		if fd.Name() == name {
			return NewPayloadResponse(format, payloadBytes(fd, m.Get(fd))), nil
		}
	}
	for kind, name := range responseMessageFields {
		if fd.Name() == name {
			return &Response{Kind: kind, Message: m.Get(fd).String()}, nil
		}
	}
	return nil, fmt.Errorf("conformance: unexpected result field %q", fd.Name())
}

// MarshalFailureSet returns the FailureSet encoding listing the given test names.
func MarshalFailureSet(reg *schema.Registry, failures ...string) ([]byte, error) {
	m, err := newEnvelope(reg, schema.FailureSet)
	if err != nil {
		return nil, err
	}
	list := m.Mutable(m.Descriptor().Fields().ByName("failure")).List()
	for _, f := range failures {
		list.Append(protoreflect.ValueOfString(f))
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(m.Interface())
}

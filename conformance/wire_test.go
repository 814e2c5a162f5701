package conformance

import (
	"testing"

	"github.com/holmberd/go-protoconform/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

func TestRequest(t *testing.T) {
	reg := schema.Default()

	t.Run("Round trip every payload format", func(t *testing.T) {
		for _, format := range []WireFormat{WireFormatProtobuf, WireFormatJSON, WireFormatJSPB, WireFormatText} {
			in := &Request{
				MessageType:        string(schema.TestAllTypesProto3),
				PayloadFormat:      format,
				Payload:            []byte("payload"),
				OutputFormat:       WireFormatJSON,
				TestCategory:       TestCategoryJSONIgnoreUnknown,
				PrintUnknownFields: true,
			}
			data, err := in.Marshal(reg)
			require.NoError(t, err)

			out, err := UnmarshalRequest(data, reg)
			require.NoError(t, err)
			assert.Equal(t, in, out, "format %s", format)
		}
	})

	t.Run("Empty binary payload is still a payload", func(t *testing.T) {
		in := &Request{
			MessageType:   string(schema.TestAllTypesProto3),
			PayloadFormat: WireFormatProtobuf,
			OutputFormat:  WireFormatProtobuf,
		}
		data, err := in.Marshal(nil)
		require.NoError(t, err)

		out, err := UnmarshalRequest(data, nil)
		require.NoError(t, err)
		assert.True(t, out.HasPayload())
		assert.Equal(t, WireFormatProtobuf, out.PayloadFormat)
		assert.Empty(t, out.Payload)
	})

	t.Run("Request without payload", func(t *testing.T) {
		data, err := (&Request{MessageType: "x", OutputFormat: WireFormatProtobuf}).Marshal(reg)
		require.NoError(t, err)
		out, err := UnmarshalRequest(data, reg)
		require.NoError(t, err)
		assert.False(t, out.HasPayload())
	})

	t.Run("Malformed request", func(t *testing.T) {
		_, err := UnmarshalRequest([]byte{0x0a, 0x05}, reg)
		assert.Error(t, err)
	})

	t.Run("Unknown payload format", func(t *testing.T) {
		_, err := (&Request{PayloadFormat: WireFormat(42)}).Marshal(reg)
		assert.Error(t, err)
	})
}

func TestResponse(t *testing.T) {
	reg := schema.Default()

	responses := []*Response{
		NewPayloadResponse(WireFormatProtobuf, []byte{0x08, 0x01}),
		NewPayloadResponse(WireFormatJSON, []byte(`{"optionalInt32":1}`)),
		NewPayloadResponse(WireFormatText, []byte("optional_int32: 1")),
		NewParseErrorResponse("bad payload"),
		NewSerializeErrorResponse("cannot serialize"),
		NewRuntimeErrorResponse("boom"),
		NewSkippedResponse("unsupported"),
	}
	for _, in := range responses {
		t.Run("Round trip "+in.Kind.String(), func(t *testing.T) {
			data, err := in.Marshal(reg)
			require.NoError(t, err)
			out, err := UnmarshalResponse(data, reg)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}

	t.Run("Empty binary payload", func(t *testing.T) {
		data, err := NewPayloadResponse(WireFormatProtobuf, nil).Marshal(reg)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x1a, 0x00}, data, "field 3 with a zero-length body")

		out, err := UnmarshalResponse(data, reg)
		require.NoError(t, err)
		assert.Equal(t, ResultPayload, out.Kind)
		assert.Empty(t, out.Payload)
	})

	t.Run("Response without result", func(t *testing.T) {
		_, err := UnmarshalResponse(nil, reg)
		assert.Error(t, err)
	})

	t.Run("Unknown result kind", func(t *testing.T) {
		_, err := (&Response{Kind: ResultKind(99)}).Marshal(reg)
		assert.Error(t, err)
	})
}

func TestMarshalFailureSet(t *testing.T) {
	reg := schema.Default()

	empty, err := MarshalFailureSet(reg)
	require.NoError(t, err)
	assert.Empty(t, empty)

	data, err := MarshalFailureSet(reg, "Required.Proto3.A", "Recommended.Proto2.B")
	require.NoError(t, err)
	out := reg.MustMessageType(schema.FailureSet).New().Interface()
	require.NoError(t, proto.Unmarshal(data, out))
	list := out.ProtoReflect().Get(out.ProtoReflect().Descriptor().Fields().ByName("failure")).List()
	assert.Equal(t, 2, list.Len())

	num, typ, _ := protowire.ConsumeTag(data)
	assert.Equal(t, protowire.Number(1), num)
	assert.Equal(t, protowire.BytesType, typ)
}

func TestEnumNames(t *testing.T) {
	assert.Equal(t, "TEXT_FORMAT", WireFormatText.String())
	assert.Equal(t, "JSON_IGNORE_UNKNOWN_PARSING_TEST", TestCategoryJSONIgnoreUnknown.String())
	assert.Equal(t, "skipped", ResultSkipped.String())
	assert.Equal(t, "wire_format(9)", WireFormat(9).String())
}

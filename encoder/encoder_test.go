package encoder

import (
	"strings"
	"testing"

	"github.com/holmberd/go-protoconform/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

type selfMarshaling struct {
	data []byte
}

func (s selfMarshaling) MarshalProto() ([]byte, error) { return s.data, nil }

func (s *selfMarshaling) UnmarshalProto(data []byte) error {
	s.data = append([]byte{}, data...)
	return nil
}

func newTestMessage(t *testing.T) protoreflect.Message {
	t.Helper()
	mt := schema.Default().MustMessageType(schema.TestAllTypesProto3)
	m := mt.New()
	fields := mt.Descriptor().Fields()
	m.Set(fields.ByName("optional_int32"), protoreflect.ValueOfInt32(7))
	m.Set(fields.ByName("optional_string"), protoreflect.ValueOfString("x"))
	return m
}

func TestProtoEncoder(t *testing.T) {
	t.Run("Round trip proto.Message", func(t *testing.T) {
		enc := ProtoEncoder{Deterministic: true}
		m := newTestMessage(t)
		data, err := enc.Marshal(m.Interface())
		require.NoError(t, err)

		out := m.Type().New().Interface()
		require.NoError(t, enc.Unmarshal(data, out))
		assert.True(t, proto.Equal(m.Interface(), out))
	})

	t.Run("Round trip ProtoMarshaler", func(t *testing.T) {
		enc := ProtoEncoder{}
		data, err := enc.Marshal(selfMarshaling{data: []byte{1, 2}})
		require.NoError(t, err)
		var out selfMarshaling
		require.NoError(t, enc.Unmarshal(data, &out))
		assert.Equal(t, []byte{1, 2}, out.data)
	})

	t.Run("Discard unknown fields", func(t *testing.T) {
		data := protowire.AppendTag(nil, 999, protowire.VarintType)
		data = protowire.AppendVarint(data, 1)
		out := newTestMessage(t).Type().New().Interface()
		require.NoError(t, ProtoEncoder{DiscardUnknown: true}.Unmarshal(data, out))
		assert.Empty(t, out.ProtoReflect().GetUnknown())
	})

	t.Run("Reject unsupported values", func(t *testing.T) {
		_, err := ProtoEncoder{}.Marshal("not a message")
		assert.Error(t, err)
		assert.Error(t, ProtoEncoder{}.Unmarshal(nil, new(string)))
		_, err = ProtoMarshal(nil)
		assert.Error(t, err)
		assert.Error(t, ProtoUnmarshal(nil, nil))
	})
}

func TestJSONEncoder(t *testing.T) {
	reg := schema.Default()

	t.Run("Round trip", func(t *testing.T) {
		enc := JSONEncoder{Resolver: reg.Resolver()}
		m := newTestMessage(t)
		data, err := enc.Marshal(m.Interface())
		require.NoError(t, err)
		assert.Contains(t, string(data), "optionalInt32")

		out := m.Type().New().Interface()
		require.NoError(t, enc.Unmarshal(data, out))
		assert.True(t, proto.Equal(m.Interface(), out))
	})

	t.Run("Unknown JSON fields", func(t *testing.T) {
		payload := []byte(`{"optionalInt32": 1, "unknownField": true}`)
		out := newTestMessage(t).Type().New().Interface()
		assert.Error(t, JSONEncoder{}.Unmarshal(payload, out), "should reject unknown fields by default")
		assert.NoError(t, JSONEncoder{DiscardUnknown: true}.Unmarshal(payload, out))
	})

	t.Run("Reject non-message", func(t *testing.T) {
		_, err := JSONEncoder{}.Marshal(42)
		assert.Error(t, err)
	})
}

func TestTextEncoder(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		m := newTestMessage(t)
		data, err := TextEncoder{}.Marshal(m.Interface())
		require.NoError(t, err)
		assert.Contains(t, string(data), "optional_int32")

		out := m.Type().New().Interface()
		require.NoError(t, TextEncoder{}.Unmarshal(data, out))
		assert.True(t, proto.Equal(m.Interface(), out))
	})

	t.Run("Emit unknown fields", func(t *testing.T) {
		m := newTestMessage(t)
		unknown := protowire.AppendTag(nil, 999, protowire.VarintType)
		m.SetUnknown(protowire.AppendVarint(unknown, 5))

		plain, err := TextEncoder{}.Marshal(m.Interface())
		require.NoError(t, err)
		assert.False(t, strings.Contains(string(plain), "999"))

		withUnknown, err := TextEncoder{EmitUnknown: true}.Marshal(m.Interface())
		require.NoError(t, err)
		assert.Contains(t, string(withUnknown), "999")
	})
}

func TestCBOREncoder(t *testing.T) {
	enc, err := NewCBOREncoder()
	require.NoError(t, err)
	assert.Equal(t, "application/cbor", enc.ContentType())

	type summary struct {
		Requests uint64            `cbor:"requests"`
		Results  map[string]uint64 `cbor:"results"`
	}
	in := summary{Requests: 3, Results: map[string]uint64{"ok": 2, "skipped": 1}}

	first, err := enc.Marshal(in)
	require.NoError(t, err)
	second, err := enc.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, first, second, "should encode deterministically")

	var out summary
	require.NoError(t, enc.Unmarshal(first, &out))
	assert.Equal(t, in, out)

	assert.Error(t, enc.Unmarshal([]byte{0xff}, &out))
}

func TestCodecContentTypes(t *testing.T) {
	for _, c := range []Codec{ProtoEncoder{}, JSONEncoder{}, TextEncoder{}} {
		assert.NotEmpty(t, c.ContentType())
	}
}

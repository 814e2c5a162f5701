package harness

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/holmberd/go-protoconform/conformance"
	"github.com/holmberd/go-protoconform/crossdecode"
	"github.com/holmberd/go-protoconform/dispatch"
	"github.com/holmberd/go-protoconform/frame"
	"github.com/holmberd/go-protoconform/schema"
	"github.com/holmberd/go-protoconform/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func encodeRequests(t *testing.T, reqs ...*conformance.Request) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, req := range reqs {
		data, err := req.Marshal(nil)
		require.NoError(t, err)
		require.NoError(t, frame.WriteFrame(&buf, data, frame.DefaultLimits()))
	}
	return &buf
}

func decodeResponses(t *testing.T, r io.Reader) []*conformance.Response {
	t.Helper()
	var out []*conformance.Response
	for {
		data, err := frame.ReadFrame(r, frame.DefaultLimits())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		res, err := conformance.UnmarshalResponse(data, nil)
		require.NoError(t, err)
		out = append(out, res)
	}
}

func binaryRequest(payload []byte) *conformance.Request {
	return &conformance.Request{
		MessageType:   string(schema.TestAllTypesProto3),
		PayloadFormat: conformance.WireFormatProtobuf,
		Payload:       payload,
		OutputFormat:  conformance.WireFormatProtobuf,
		TestCategory:  conformance.TestCategoryBinary,
	}
}

func TestRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("Serve a session until end-of-stream", func(t *testing.T) {
		in := encodeRequests(t,
			&conformance.Request{MessageType: string(schema.FailureSet), PayloadFormat: conformance.WireFormatProtobuf, OutputFormat: conformance.WireFormatProtobuf},
			binaryRequest(nil),
			binaryRequest([]byte{0x08, 0x96, 0x01}),
			binaryRequest([]byte{0x08}),
			&conformance.Request{
				MessageType:   string(schema.TestAllTypesProto3),
				PayloadFormat: conformance.WireFormatJSON,
				Payload:       []byte(`{"optionalInt32": 150}`),
				OutputFormat:  conformance.WireFormatJSON,
			},
		)
		var out bytes.Buffer
		r := New(nil, WithLogger(testutil.NewLogger(t)))

		var events []*ResponseEvent
		r.OnResponse().AddListener(func(_ context.Context, ev *ResponseEvent) { events = append(events, ev) })

		require.NoError(t, r.Run(ctx, in, &out))

		responses := decodeResponses(t, &out)
		require.Len(t, responses, 5)
		assert.Equal(t, conformance.ResultPayload, responses[0].Kind, "failure set")
		assert.Empty(t, responses[0].Payload)
		assert.Equal(t, conformance.ResultPayload, responses[1].Kind)
		assert.Empty(t, responses[1].Payload, "empty message re-encodes to nothing")
		assert.Equal(t, []byte{0x08, 0x96, 0x01}, responses[2].Payload)
		assert.Equal(t, conformance.ResultParseError, responses[3].Kind)
		assert.JSONEq(t, `{"optionalInt32": 150}`, string(responses[4].Payload))

		require.Len(t, events, 5)
		for i, ev := range events {
			assert.Equal(t, uint64(i+1), ev.Sequence)
		}

		stats := r.Stats()
		assert.Equal(t, uint64(5), stats.Requests)
		assert.Equal(t, uint64(4), stats.Results[conformance.ResultPayload])
		assert.Equal(t, uint64(1), stats.Results[conformance.ResultParseError])
		assert.Equal(t, uint64(1), stats.Failures[crossdecode.KindParseFailure])
	})

	t.Run("Empty input ends cleanly", func(t *testing.T) {
		var out bytes.Buffer
		r := New(nil)
		require.NoError(t, r.Run(ctx, bytes.NewReader(nil), &out))
		assert.Zero(t, out.Len())
		assert.Zero(t, r.Stats().Requests)
	})

	t.Run("Missing payload is fatal", func(t *testing.T) {
		in := encodeRequests(t,
			binaryRequest(nil),
			&conformance.Request{MessageType: string(schema.TestAllTypesProto3), OutputFormat: conformance.WireFormatProtobuf},
			binaryRequest(nil),
		)
		var out bytes.Buffer
		r := New(nil)
		err := r.Run(ctx, in, &out)
		require.Error(t, err)
		assert.True(t, errors.Is(err, dispatch.ErrMissingPayload))
		assert.Contains(t, err.Error(), "request 2")
		assert.Len(t, decodeResponses(t, &out), 1, "should stop before answering later requests")
	})

	t.Run("Truncated frame is fatal", func(t *testing.T) {
		in := encodeRequests(t, binaryRequest(nil))
		in.Write([]byte{10, 0, 0, 0, 0x0a})
		err := New(nil).Run(ctx, in, io.Discard)
		assert.True(t, errors.Is(err, frame.ErrShortPayload))
	})

	t.Run("Undecodable request is fatal", func(t *testing.T) {
		var in bytes.Buffer
		require.NoError(t, frame.WriteFrame(&in, []byte{0x0a, 0x05}, frame.DefaultLimits()))
		assert.Error(t, New(nil).Run(ctx, &in, io.Discard))
	})

	t.Run("Oversized frame is fatal", func(t *testing.T) {
		in := encodeRequests(t, binaryRequest(bytes.Repeat([]byte{0x08, 0x01}, 64)))
		err := New(nil, WithLimits(frame.Limits{MaxPayloadBytes: 16})).Run(ctx, in, io.Discard)
		assert.True(t, errors.Is(err, frame.ErrPayloadTooLarge))
	})

	t.Run("Canceled context stops the loop", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := New(nil).Run(cctx, encodeRequests(t, binaryRequest(nil)), io.Discard)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Buffered output is flushed per response", func(t *testing.T) {
		pr, pw := io.Pipe()
		var out bytes.Buffer
		w := bufio.NewWriter(&out)
		r := New(nil)

		flushed := make(chan int, 1)
		r.OnResponse().AddListener(func(context.Context, *ResponseEvent) {
			flushed <- out.Len()
		})
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx, pr, w) }()

		data, err := binaryRequest(nil).Marshal(nil)
		require.NoError(t, err)
		require.NoError(t, frame.WriteFrame(pw, data, frame.DefaultLimits()))
		assert.Positive(t, <-flushed, "response must reach the writer before the next read")
		require.NoError(t, pw.Close())
		require.NoError(t, <-done)
	})
}

// mutatingDecoder decodes normally and then overwrites optional_int32.
func mutatingDecoder(data []byte, m proto.Message, opts proto.UnmarshalOptions) error {
	if err := opts.Unmarshal(data, m); err != nil {
		return err
	}
	fd := m.ProtoReflect().Descriptor().Fields().ByName("optional_int32")
	m.ProtoReflect().Set(fd, protoreflect.ValueOfInt32(-1))
	return nil
}

func TestRunnerFindings(t *testing.T) {
	ctx := context.Background()
	v := crossdecode.New(crossdecode.WithDecoder(crossdecode.StrategySegmented, mutatingDecoder))
	logger, logs := testutil.NewBufferedLogger()
	d := dispatch.New(nil, dispatch.WithValidator(v), dispatch.WithLogger(logger))
	r := New(d, WithLogger(logger))

	var findings []*FindingEvent
	r.OnFinding().AddListener(func(_ context.Context, ev *FindingEvent) { findings = append(findings, ev) })

	payload := []byte{0x08, 0x05}
	var out bytes.Buffer
	require.NoError(t, r.Run(ctx, encodeRequests(t, binaryRequest(nil), binaryRequest(payload)), &out))

	responses := decodeResponses(t, &out)
	require.Len(t, responses, 2)
	assert.Equal(t, conformance.ResultParseError, responses[1].Kind)
	assert.Contains(t, responses[1].Message, "segmented")

	require.Len(t, findings, 2)
	assert.Equal(t, uint64(1), findings[0].Sequence)
	assert.Equal(t, crossdecode.KindCrossStrategyMismatch, findings[1].Kind)
	assert.Equal(t, payload, findings[1].Payload)
	assert.ErrorIs(t, findings[1].Err, crossdecode.ErrCrossStrategyMismatch)

	assert.Equal(t, uint64(2), r.Stats().Failures[crossdecode.KindCrossStrategyMismatch])
	assert.Contains(t, logs.String(), "decoding strategies diverged")
	assert.Contains(t, logs.String(), `"requests":2`)
}

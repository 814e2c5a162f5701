// Package dispatch routes conformance requests to the codec matching their
// payload and output formats.
//
// Binary payloads are decoded through crossdecode so that every decoding
// strategy is cross-checked. JSON and text payloads have a single decoding
// path and are parsed directly.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/holmberd/go-protoconform/conformance"
	"github.com/holmberd/go-protoconform/crossdecode"
	"github.com/holmberd/go-protoconform/encoder"
	"github.com/holmberd/go-protoconform/schema"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var (
	// ErrUnsupportedFormat marks protocol usage errors. They indicate a
	// malformed test driver and abort the run.
	ErrUnsupportedFormat   = errors.New("dispatch: unsupported format")
	ErrMissingPayload      = fmt.Errorf("%w: request has no payload", ErrUnsupportedFormat)
	ErrUnknownOutputFormat = fmt.Errorf("%w: unrecognized output format", ErrUnsupportedFormat)

	ErrSerializeFailure = errors.New("dispatch: serialize failure")
)

// Result is the outcome of handling one request.
type Result struct {
	Response *conformance.Response
	Failure  crossdecode.FailureKind // Set when binary cross-validation failed.
	Err      error                   // Underlying parse or serialize error, if any.
}

// Dispatcher handles conformance requests. It holds no per-request state.
type Dispatcher struct {
	registry  *schema.Registry
	validator *crossdecode.Validator
	logger    zerolog.Logger
}

type Option func(*Dispatcher)

func WithValidator(v *crossdecode.Validator) Option {
	return func(d *Dispatcher) {
		d.validator = v
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a new instance of a Dispatcher.
// A nil registry selects schema.Default().
func New(reg *schema.Registry, opts ...Option) *Dispatcher {
	if reg == nil {
		reg = schema.Default()
	}
	d := &Dispatcher{
		registry:  reg,
		validator: crossdecode.New(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle produces the response to req.
// A non-nil error is a protocol usage error and must end the run.
func (d *Dispatcher) Handle(req *conformance.Request) (*Result, error) {
	if req == nil {
		return nil, ErrMissingPayload
	}
	name := protoreflect.FullName(req.MessageType)
	if name == schema.FailureSet {
		// The runner asks for the testee's list of expected failures first.
		data, err := conformance.MarshalFailureSet(d.registry)
		if err != nil {
			return nil, err
		}
		return &Result{Response: conformance.NewPayloadResponse(conformance.WireFormatProtobuf, data)}, nil
	}
	if !req.HasPayload() {
		return nil, ErrMissingPayload
	}
	switch req.OutputFormat {
	case conformance.WireFormatProtobuf,
		conformance.WireFormatJSON,
		conformance.WireFormatJSPB,
		conformance.WireFormatText:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutputFormat, req.OutputFormat)
	}

	if !schema.IsTestMessage(name) {
		return skipped(fmt.Sprintf("unsupported message type %q", name)), nil
	}
	mt, err := d.registry.FindMessageType(name)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	msg, res := d.parse(req, mt)
	if res != nil {
		return res, nil
	}
	return d.serialize(req, msg), nil
}

func skipped(reason string) *Result {
	return &Result{Response: conformance.NewSkippedResponse(reason)}
}

func parseFailed(err error, kind crossdecode.FailureKind) *Result {
	return &Result{
		Response: conformance.NewParseErrorResponse(err.Error()),
		Failure:  kind,
		Err:      err,
	}
}

// parse decodes the request payload. A non-nil Result ends handling early.
func (d *Dispatcher) parse(req *conformance.Request, mt protoreflect.MessageType) (proto.Message, *Result) {
	switch req.PayloadFormat {
	case conformance.WireFormatProtobuf:
		msg, err := d.validator.Validate(req.Payload, mt, d.registry.Resolver())
		if err != nil {
			kind := crossdecode.Classify(err)
			if kind != crossdecode.KindParseFailure {
				d.logger.Warn().
					Err(err).
					Str("message_type", req.MessageType).
					Str("failure", string(kind)).
					Int("payload_bytes", len(req.Payload)).
					Msg("decoding strategies diverged")
			}
			return nil, parseFailed(err, kind)
		}
		return msg, nil

	case conformance.WireFormatJSON:
		msg := mt.New().Interface()
		enc := encoder.JSONEncoder{
			Resolver:       d.registry.Resolver(),
			DiscardUnknown: req.TestCategory == conformance.TestCategoryJSONIgnoreUnknown,
		}
		if err := enc.Unmarshal(req.Payload, msg); err != nil {
			return nil, parseFailed(err, crossdecode.KindNone)
		}
		return msg, nil

	case conformance.WireFormatText:
		msg := mt.New().Interface()
		enc := encoder.TextEncoder{Resolver: d.registry.Resolver()}
		if err := enc.Unmarshal(req.Payload, msg); err != nil {
			return nil, parseFailed(err, crossdecode.KindNone)
		}
		return msg, nil

	default:
		return nil, skipped(fmt.Sprintf("%s input is not supported", req.PayloadFormat))
	}
}

func (d *Dispatcher) serialize(req *conformance.Request, msg proto.Message) *Result {
	var c encoder.Codec
	switch req.OutputFormat {
	case conformance.WireFormatProtobuf:
		c = encoder.ProtoEncoder{Deterministic: true}
	case conformance.WireFormatJSON:
		c = encoder.JSONEncoder{Resolver: d.registry.Resolver()}
	case conformance.WireFormatText:
		c = encoder.TextEncoder{
			Resolver:    d.registry.Resolver(),
			EmitUnknown: req.PrintUnknownFields,
		}
	default:
		return skipped(fmt.Sprintf("%s output is not supported", req.OutputFormat))
	}

	data, err := c.Marshal(msg)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSerializeFailure, err)
		return &Result{
			Response: conformance.NewSerializeErrorResponse(err.Error()),
			Err:      err,
		}
	}
	return &Result{Response: conformance.NewPayloadResponse(req.OutputFormat, data)}
}

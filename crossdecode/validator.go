// Package crossdecode decodes a binary protobuf payload through every decoding
// strategy and verifies that all strategies agree before handing out a single
// canonical message.
//
// Example:
//
//	v := crossdecode.New()
//	msg, err := v.Validate(payload, mt, registry.Resolver())
//	switch crossdecode.Classify(err) {
//	case crossdecode.KindNone:
//		// msg is the canonical value.
//	case crossdecode.KindParseFailure:
//		// Every strategy rejected the payload.
//	default:
//		// Decoders diverged; err carries the full report.
//	}
package crossdecode

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Outcome is the result of decoding a payload through one strategy.
// Exactly one of Message and Err is set.
type Outcome struct {
	Strategy Strategy
	Message  proto.Message
	Err      error
}

func (o Outcome) Accepted() bool {
	return o.Err == nil
}

// Validator cross-checks decoding strategies.
// A Validator holds no mutable state and is safe for concurrent use.
type Validator struct {
	decoders [numStrategies]DecodeFunc
	opts     proto.UnmarshalOptions
}

type Option func(*Validator)

// WithRecursionLimit limits how deeply messages may be nested.
// Zero selects the protobuf runtime default.
func WithRecursionLimit(limit int) Option {
	return func(v *Validator) {
		v.opts.RecursionLimit = limit
	}
}

// WithAllowPartial accepts messages with missing required fields.
func WithAllowPartial(allow bool) Option {
	return func(v *Validator) {
		v.opts.AllowPartial = allow
	}
}

// WithDecoder replaces the decoder used for strategy s, for instance to
// cross-check an alternative decoder implementation. Invalid strategies and
// nil decoders are ignored.
func WithDecoder(s Strategy, fn DecodeFunc) Option {
	return func(v *Validator) {
		if s.valid() && fn != nil {
			v.decoders[s] = fn
		}
	}
}

// New creates a new instance of a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		decoders: [numStrategies]DecodeFunc{
			StrategyOwned:     decodeOwned,
			StrategyBorrowed:  decodeBorrowed,
			StrategyStream:    decodeStream,
			StrategySegmented: decodeSegmented,
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultValidator = New()

// Validate validates data with a Validator using default options.
func Validate(
	data []byte,
	mt protoreflect.MessageType,
	resolver protoregistry.ExtensionTypeResolver,
) (proto.Message, error) {
	return defaultValidator.Validate(data, mt, resolver)
}

// Decode decodes data as mt through a single strategy.
// A nil resolver resolves extensions against protoregistry.GlobalTypes.
func (v *Validator) Decode(
	s Strategy,
	data []byte,
	mt protoreflect.MessageType,
	resolver protoregistry.ExtensionTypeResolver,
) (proto.Message, error) {
	if !s.valid() {
		return nil, fmt.Errorf("crossdecode: unknown %s", s)
	}
	if mt == nil {
		return nil, fmt.Errorf("crossdecode: message type must not be nil")
	}
	opts := v.opts
	opts.Resolver = resolver
	if resolver == nil {
		opts.Resolver = protoregistry.GlobalTypes
	}
	m := mt.New().Interface()
	if err := v.decoders[s](data, m, opts); err != nil {
		return nil, err
	}
	return m, nil
}

// Outcomes decodes data through every strategy and returns the outcomes in
// enumeration order.
func (v *Validator) Outcomes(
	data []byte,
	mt protoreflect.MessageType,
	resolver protoregistry.ExtensionTypeResolver,
) []Outcome {
	outcomes := make([]Outcome, len(strategies))
	for i, s := range strategies {
		m, err := v.Decode(s, data, mt, resolver)
		outcomes[i] = Outcome{Strategy: s, Message: m, Err: err}
	}
	return outcomes
}

// Validate decodes data as mt through every strategy and returns the
// canonical message if all strategies agree.
//
// The returned error matches exactly one of ErrParseFailure,
// ErrDecoderDisagreement and ErrCrossStrategyMismatch.
func (v *Validator) Validate(
	data []byte,
	mt protoreflect.MessageType,
	resolver protoregistry.ExtensionTypeResolver,
) (proto.Message, error) {
	outcomes := v.Outcomes(data, mt, resolver)
	return reconcile(outcomes)
}

func reconcile(outcomes []Outcome) (proto.Message, error) {
	var anySucceeded, anyFailed bool
	for _, o := range outcomes {
		if o.Accepted() {
			anySucceeded = true
		} else {
			anyFailed = true
		}
	}

	switch {
	case anySucceeded && anyFailed:
		verdicts := make([]Verdict, len(outcomes))
		for i, o := range outcomes {
			verdicts[i] = Verdict{Strategy: o.Strategy, Accepted: o.Accepted(), Err: o.Err}
		}
		return nil, &DisagreementError{Verdicts: verdicts}
	case anyFailed:
		// Strategies may word the same structural error differently; only the
		// first one is surfaced.
		return nil, &ParseError{Strategy: outcomes[0].Strategy, Err: outcomes[0].Err}
	}

	// Fast path: compare against the first value only.
	first := outcomes[0].Message
	for _, o := range outcomes[1:] {
		if !proto.Equal(first, o.Message) {
			return nil, &MismatchError{Pairs: mismatchedPairs(outcomes)}
		}
	}
	return first, nil
}

// mismatchedPairs compares every pair of decoded values.
func mismatchedPairs(outcomes []Outcome) []MismatchedPair {
	var pairs []MismatchedPair
	for i := 0; i < len(outcomes); i++ {
		for j := i + 1; j < len(outcomes); j++ {
			if !proto.Equal(outcomes[i].Message, outcomes[j].Message) {
				pairs = append(pairs, MismatchedPair{A: outcomes[i].Strategy, B: outcomes[j].Strategy})
			}
		}
	}
	return pairs
}

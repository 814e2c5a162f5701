package crossdecode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// Strategy is one way of presenting the same payload to the decoder.
// The set of strategies is closed; see Strategies.
type Strategy uint8

const (
	// StrategyOwned decodes a private copy of the payload.
	StrategyOwned Strategy = iota
	// StrategyBorrowed decodes the caller's buffer in place.
	StrategyBorrowed
	// StrategyStream reads the payload through a buffered length-delimited stream.
	StrategyStream
	// StrategySegmented walks a read-only view of the payload one top-level
	// field at a time and merges each field into the message.
	StrategySegmented

	numStrategies
)

var strategies = [numStrategies]Strategy{
	StrategyOwned,
	StrategyBorrowed,
	StrategyStream,
	StrategySegmented,
}

// Strategies returns every strategy in enumeration order.
func Strategies() []Strategy {
	out := make([]Strategy, len(strategies))
	copy(out, strategies[:])
	return out
}

func (s Strategy) String() string {
	switch s {
	case StrategyOwned:
		return "owned"
	case StrategyBorrowed:
		return "borrowed"
	case StrategyStream:
		return "stream"
	case StrategySegmented:
		return "segmented"
	default:
		return fmt.Sprintf("strategy(%d)", s)
	}
}

func (s Strategy) valid() bool {
	return s < numStrategies
}

// DecodeFunc decodes data into m, which is a freshly allocated message.
type DecodeFunc func(data []byte, m proto.Message, opts proto.UnmarshalOptions) error

func decodeOwned(data []byte, m proto.Message, opts proto.UnmarshalOptions) error {
	return opts.Unmarshal(bytes.Clone(data), m)
}

func decodeBorrowed(data []byte, m proto.Message, opts proto.UnmarshalOptions) error {
	return opts.Unmarshal(data, m)
}

func decodeStream(data []byte, m proto.Message, opts proto.UnmarshalOptions) error {
	prefix := protowire.AppendVarint(nil, uint64(len(data)))
	r := bufio.NewReader(io.MultiReader(bytes.NewReader(prefix), bytes.NewReader(data)))
	dopts := protodelim.UnmarshalOptions{
		UnmarshalOptions: opts,
		MaxSize:          -1, // The frame limit already bounds the payload.
	}
	return dopts.UnmarshalFrom(r, m)
}

// decodeSegmented relies on the wire format rule that a concatenation of
// encoded fields decodes to the merge of its parts.
func decodeSegmented(data []byte, m proto.Message, opts proto.UnmarshalOptions) error {
	segOpts := opts
	segOpts.Merge = true
	segOpts.AllowPartial = true // Required fields are checked once on the whole message.

	for view := data; len(view) > 0; {
		_, _, n := protowire.ConsumeField(view)
		if n < 0 {
			return fmt.Errorf("proto: cannot parse invalid wire-format data: %w", protowire.ParseError(n))
		}
		if err := segOpts.Unmarshal(view[:n], m); err != nil {
			return err
		}
		view = view[n:]
	}
	if opts.AllowPartial {
		return nil
	}
	return proto.CheckInitialized(m)
}

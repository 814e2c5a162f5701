package crossdecode

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParseFailure          = errors.New("crossdecode: parse failure")
	ErrDecoderDisagreement   = errors.New("crossdecode: decoders disagreed on validity")
	ErrCrossStrategyMismatch = errors.New("crossdecode: decoded values differ across strategies")
)

// ParseError is returned when every strategy rejected the payload.
// It carries the failure of the first strategy in enumeration order.
type ParseError struct {
	Strategy Strategy
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrParseFailure, e.Strategy, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParseFailure, e.Err}
}

// Verdict is the accept/reject decision of one strategy.
type Verdict struct {
	Strategy Strategy
	Accepted bool
	Err      error // Set when rejected.
}

func (v Verdict) String() string {
	if v.Accepted {
		return v.Strategy.String() + "=accepted"
	}
	return v.Strategy.String() + "=rejected"
}

// DisagreementError is returned when some strategies accepted the payload
// and others rejected it.
type DisagreementError struct {
	Verdicts []Verdict // One per strategy, in enumeration order.
}

func (e *DisagreementError) Error() string {
	parts := make([]string, len(e.Verdicts))
	for i, v := range e.Verdicts {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s: %s", ErrDecoderDisagreement, strings.Join(parts, ", "))
}

func (e *DisagreementError) Is(target error) bool {
	return target == ErrDecoderDisagreement
}

// MismatchedPair names two strategies that decoded unequal messages.
type MismatchedPair struct {
	A Strategy
	B Strategy
}

func (p MismatchedPair) String() string {
	return p.A.String() + " vs " + p.B.String()
}

// MismatchError is returned when every strategy accepted the payload but the
// decoded messages are not structurally equal.
type MismatchError struct {
	Pairs []MismatchedPair // Every unequal pair, A before B in enumeration order.
}

func (e *MismatchError) Error() string {
	parts := make([]string, len(e.Pairs))
	for i, p := range e.Pairs {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s: %s", ErrCrossStrategyMismatch, strings.Join(parts, ", "))
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrCrossStrategyMismatch
}

// FailureKind classifies a validation error.
type FailureKind string

const (
	KindNone                  FailureKind = ""
	KindParseFailure          FailureKind = "parse_failure"
	KindDecoderDisagreement   FailureKind = "decoder_disagreement"
	KindCrossStrategyMismatch FailureKind = "cross_strategy_mismatch"
)

// Classify returns the failure kind of an error returned by Validate.
// Errors that did not originate from the validator classify as KindNone.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDecoderDisagreement):
		return KindDecoderDisagreement
	case errors.Is(err, ErrCrossStrategyMismatch):
		return KindCrossStrategyMismatch
	case errors.Is(err, ErrParseFailure):
		return KindParseFailure
	default:
		return KindNone
	}
}

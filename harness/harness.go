// Package harness runs the conformance testee loop: read a framed request,
// dispatch it, write the framed response, repeat until end-of-stream.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/holmberd/go-protoconform/conformance"
	"github.com/holmberd/go-protoconform/crossdecode"
	"github.com/holmberd/go-protoconform/dispatch"
	"github.com/holmberd/go-protoconform/eventemitter"
	"github.com/holmberd/go-protoconform/frame"
	"github.com/holmberd/go-protoconform/schema"
	"github.com/rs/zerolog"
)

// ResponseEvent is emitted after each response is written.
type ResponseEvent struct {
	Sequence uint64 // 1-based request number.
	Request  *conformance.Request
	Response *conformance.Response
}

// FindingEvent is emitted when the decoding strategies diverged on a request.
type FindingEvent struct {
	Sequence    uint64
	MessageType string
	Kind        crossdecode.FailureKind
	Err         error
	Payload     []byte
}

// Stats counts what a run has handled so far.
type Stats struct {
	Requests uint64
	Results  map[conformance.ResultKind]uint64
	Failures map[crossdecode.FailureKind]uint64
}

type flusher interface {
	Flush() error
}

// Runner drives one conformance session over a reader and writer pair.
type Runner struct {
	dispatcher *dispatch.Dispatcher
	registry   *schema.Registry
	limits     frame.Limits
	logger     zerolog.Logger

	onResponse *eventemitter.EventTarget[*ResponseEvent]
	onFinding  *eventemitter.EventTarget[*FindingEvent]

	mu    sync.Mutex
	stats Stats
}

type Option func(*Runner)

func WithRegistry(reg *schema.Registry) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

func WithLimits(limits frame.Limits) Option {
	return func(r *Runner) {
		r.limits = limits
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a new instance of a Runner.
func New(d *dispatch.Dispatcher, opts ...Option) *Runner {
	r := &Runner{
		dispatcher: d,
		limits:     frame.DefaultLimits(),
		logger:     zerolog.Nop(),
		onResponse: eventemitter.NewEventTarget[*ResponseEvent]("ResponseWritten"),
		onFinding:  eventemitter.NewEventTarget[*FindingEvent]("FindingDetected"),
		stats: Stats{
			Results:  make(map[conformance.ResultKind]uint64),
			Failures: make(map[crossdecode.FailureKind]uint64),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = schema.Default()
	}
	if r.dispatcher == nil {
		r.dispatcher = dispatch.New(r.registry, dispatch.WithLogger(r.logger))
	}
	return r
}

// OnResponse fires on the loop goroutine after every response is written.
func (r *Runner) OnResponse() *eventemitter.EventTarget[*ResponseEvent] {
	return r.onResponse
}

// OnFinding fires on the loop goroutine when strategies disagreed or mismatched.
func (r *Runner) OnFinding() *eventemitter.EventTarget[*FindingEvent] {
	return r.onFinding
}

// Stats returns a snapshot of the run counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Requests: r.stats.Requests,
		Results:  maps.Clone(r.stats.Results),
		Failures: maps.Clone(r.stats.Failures),
	}
}

// Run serves requests from in until it reaches a clean end-of-stream, which
// returns nil. Framing errors, undecodable requests and protocol usage errors
// end the run with an error. ctx is checked between requests.
//
// If out implements Flush() error it is flushed after every response.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	err := r.loop(ctx, in, out)
	r.logSummary(err)
	return err
}

func (r *Runner) loop(ctx context.Context, in io.Reader, out io.Writer) error {
	for seq := uint64(1); ; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := frame.ReadFrame(in, r.limits)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("harness: request %d: %w", seq, err)
		}
		if err := r.serve(ctx, seq, data, out); err != nil {
			return fmt.Errorf("harness: request %d: %w", seq, err)
		}
	}
}

func (r *Runner) serve(ctx context.Context, seq uint64, data []byte, out io.Writer) error {
	req, err := conformance.UnmarshalRequest(data, r.registry)
	if err != nil {
		return err
	}
	res, err := r.dispatcher.Handle(req)
	if err != nil {
		return err
	}

	payload, err := res.Response.Marshal(r.registry)
	if err != nil {
		return err
	}
	if err := frame.WriteFrame(out, payload, r.limits); err != nil {
		return err
	}
	if f, ok := out.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}

	r.record(res)
	r.logger.Trace().
		Uint64("seq", seq).
		Str("message_type", req.MessageType).
		Stringer("input", req.PayloadFormat).
		Stringer("output", req.OutputFormat).
		Stringer("result", res.Response.Kind).
		Msg("request handled")

	if res.Failure == crossdecode.KindDecoderDisagreement || res.Failure == crossdecode.KindCrossStrategyMismatch {
		r.onFinding.Emit(ctx, &FindingEvent{
			Sequence:    seq,
			MessageType: req.MessageType,
			Kind:        res.Failure,
			Err:         res.Err,
			Payload:     req.Payload,
		})
	}
	r.onResponse.Emit(ctx, &ResponseEvent{Sequence: seq, Request: req, Response: res.Response})
	return nil
}

func (r *Runner) record(res *dispatch.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Requests++
	r.stats.Results[res.Response.Kind]++
	if res.Failure != crossdecode.KindNone {
		r.stats.Failures[res.Failure]++
	}
}

func (r *Runner) logSummary(err error) {
	stats := r.Stats()
	results := zerolog.Dict()
	for kind, n := range stats.Results {
		results.Uint64(kind.String(), n)
	}
	failures := zerolog.Dict()
	for kind, n := range stats.Failures {
		failures.Uint64(string(kind), n)
	}
	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Error().Err(err)
	}
	ev.Uint64("requests", stats.Requests).
		Dict("results", results).
		Dict("failures", failures).
		Msg("conformance run finished")
}

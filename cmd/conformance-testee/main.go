// Command conformance-testee answers protobuf conformance requests over
// stdin and stdout, cross-checking every binary payload through all decoding
// strategies.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/holmberd/go-protoconform/config"
	"github.com/holmberd/go-protoconform/crossdecode"
	"github.com/holmberd/go-protoconform/datastore"
	"github.com/holmberd/go-protoconform/dispatch"
	"github.com/holmberd/go-protoconform/frame"
	"github.com/holmberd/go-protoconform/harness"
	"github.com/holmberd/go-protoconform/keyfactory"
	"github.com/holmberd/go-protoconform/ledger"
	"github.com/holmberd/go-protoconform/logging"
	"github.com/holmberd/go-protoconform/schema"
	"github.com/rs/zerolog"
)

const appName = "conformance-testee"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a TOML config file")
	runID := fs.String("run-id", "", "identifier of this run in the findings ledger (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger, err := logging.New(appName, cfg.Log, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	reg, err := schema.New()
	if err != nil {
		logger.Error().Err(err).Msg("failed to build schema registry")
		return 1
	}
	validator := crossdecode.New(
		crossdecode.WithRecursionLimit(cfg.Decode.RecursionLimit),
		crossdecode.WithAllowPartial(cfg.Decode.AllowPartial),
	)
	d := dispatch.New(reg, dispatch.WithValidator(validator), dispatch.WithLogger(logger))
	runner := harness.New(d,
		harness.WithRegistry(reg),
		harness.WithLimits(frame.Limits{MaxPayloadBytes: cfg.Limits.MaxPayloadBytes}),
		harness.WithLogger(logger),
	)

	var rec *recorder
	if cfg.Ledger.Enabled {
		if *runID == "" {
			*runID = keyfactory.NewRunID(time.Now())
		}
		rec, err = openRecorder(ctx, cfg.Ledger, *runID, logger)
		if err != nil {
			logger.Error().Err(err).Str("redis_addr", cfg.Ledger.RedisAddr).Msg("failed to open findings ledger")
			return 1
		}
		defer rec.Close()
		rec.attach(runner)
		logger.Info().Str("run_id", *runID).Str("redis_addr", cfg.Ledger.RedisAddr).Msg("findings ledger enabled")
	}

	out := bufio.NewWriter(stdout)
	started := time.Now()
	runErr := runner.Run(ctx, bufio.NewReader(stdin), out)
	if rec != nil {
		rec.storeSummary(runner.Stats(), started, runErr)
	}
	if runErr != nil {
		return 1
	}
	return 0
}

// recorder forwards harness events to the findings ledger.
type recorder struct {
	rdb    *redis.Client
	ledger *ledger.Ledger
	runID  string
	logger zerolog.Logger
}

func openRecorder(ctx context.Context, cfg config.Ledger, runID string, logger zerolog.Logger) (*recorder, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	ds, err := datastore.NewClient(rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ds.Ping(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	l, err := ledger.New(ds, cfg.Namespace, ledger.WithTTL(cfg.TTL), ledger.WithLogger(logger))
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &recorder{rdb: rdb, ledger: l, runID: runID, logger: logger}, nil
}

func (r *recorder) Close() error {
	return r.rdb.Close()
}

// attach subscribes the ledger to runner events. Ledger write failures are
// logged and never end the run.
func (r *recorder) attach(runner *harness.Runner) {
	runner.OnFinding().AddListener(func(ctx context.Context, ev *harness.FindingEvent) {
		f := &ledger.Finding{
			RunID:       r.runID,
			Sequence:    ev.Sequence,
			Kind:        ev.Kind,
			MessageType: ev.MessageType,
			Payload:     ev.Payload,
		}
		if ev.Err != nil {
			f.Detail = ev.Err.Error()
		}
		if _, err := r.ledger.Record(ctx, f); err != nil {
			r.logger.Warn().Err(err).Uint64("seq", ev.Sequence).Msg("failed to record finding")
		}
	})
	runner.OnResponse().AddListener(func(ctx context.Context, ev *harness.ResponseEvent) {
		if _, err := r.ledger.CountRequest(ctx, r.runID, ev.Response.Kind.String()); err != nil {
			r.logger.Warn().Err(err).Uint64("seq", ev.Sequence).Msg("failed to count request")
		}
	})
}

func (r *recorder) storeSummary(stats harness.Stats, started time.Time, runErr error) {
	s := &ledger.RunSummary{
		RunID:      r.runID,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
		Requests:   stats.Requests,
		Results:    make(map[string]uint64, len(stats.Results)),
		Findings:   make(map[string]uint64, len(stats.Failures)),
	}
	for kind, n := range stats.Results {
		s.Results[kind.String()] = n
	}
	for kind, n := range stats.Failures {
		s.Findings[string(kind)] = n
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}

	// Detached from the run context, which may already be canceled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.ledger.PutSummary(ctx, s); err != nil {
		r.logger.Warn().Err(err).Str("run_id", r.runID).Msg("failed to store run summary")
	}
}

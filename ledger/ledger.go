// Package ledger persists conformance findings and run summaries in Redis so
// a run can be inspected after it ends.
//
// Keys:
//
//	[__namespace__:]run:<runId>                 run summary (CBOR)
//	[__namespace__:]run:<runId>:finding:<seq>   finding (protobuf)
//	[__namespace__:]run:<runId>:count:<name>    counter
package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/holmberd/go-protoconform/datastore"
	"github.com/holmberd/go-protoconform/encoder"
	"github.com/holmberd/go-protoconform/eventemitter"
	"github.com/holmberd/go-protoconform/keyfactory"
	"github.com/rs/zerolog"
)

const maxPageSize = 1000

// ErrNoNamespace is returned by Flush on a ledger without a key namespace.
var ErrNoNamespace = errors.New("ledger: flush requires a key namespace")

// Page is one page of a cursor-paginated listing.
type Page struct {
	Cursor   uint64 // Zero when the iteration is complete.
	Findings []*Finding
}

// Ledger stores findings for conformance runs. It is safe for concurrent use.
type Ledger struct {
	ds         *datastore.Client
	kb         *keyfactory.KeyBuilder
	ttl        time.Duration
	findings   encoder.ProtoEncoder
	summaries  *encoder.CBOREncoder
	logger     zerolog.Logger
	now        func() time.Time
	onRecorded *eventemitter.EventTarget[[]*Finding]
}

type Option func(*Ledger)

// WithTTL expires every key written by the ledger after d.
func WithTTL(d time.Duration) Option {
	return func(l *Ledger) {
		l.ttl = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a new instance of a Ledger writing below namespace.
func New(ds *datastore.Client, namespace string, opts ...Option) (*Ledger, error) {
	if ds == nil {
		return nil, errors.New("ledger: datastore client must not be nil")
	}
	kb, err := keyfactory.NewKeyBuilder(namespace)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	summaries, err := encoder.NewCBOREncoder()
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	l := &Ledger{
		ds:         ds,
		kb:         kb,
		findings:   encoder.ProtoEncoder{},
		summaries:  summaries,
		logger:     zerolog.Nop(),
		now:        time.Now,
		onRecorded: eventemitter.NewEventTarget[[]*Finding]("FindingsRecorded"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// OnRecorded fires after findings have been written.
func (l *Ledger) OnRecorded() *eventemitter.EventTarget[[]*Finding] {
	return l.onRecorded
}

func (l *Ledger) findingKey(f *Finding) (*keyfactory.Key, error) {
	logical, err := f.Key()
	if err != nil {
		return nil, err
	}
	return l.kb.Key(logical)
}

// Record writes f, replacing any finding with the same run and sequence.
// A zero RecordedAt is set to the current time.
func (l *Ledger) Record(ctx context.Context, f *Finding) (string, error) {
	keys, err := l.RecordBatch(ctx, []*Finding{f})
	if err != nil {
		return "", err
	}
	return keys[0], nil
}

// RecordBatch writes findings in one transaction and returns their logical keys.
func (l *Ledger) RecordBatch(ctx context.Context, findings []*Finding) ([]string, error) {
	if len(findings) == 0 {
		return nil, nil
	}
	keys := make([]*keyfactory.Key, len(findings))
	logical := make([]string, len(findings))
	data := make([][]byte, len(findings))
	for i, f := range findings {
		if f == nil {
			return nil, fmt.Errorf("ledger: finding %d is nil", i)
		}
		if f.RecordedAt.IsZero() {
			f.RecordedAt = l.now().UTC()
		}
		key, err := l.findingKey(f)
		if err != nil {
			return nil, err
		}
		d, err := l.findings.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("ledger: finding %q: %w", key, err)
		}
		keys[i], logical[i], data[i] = key, key.Key(), d
	}
	if err := l.ds.PutMulti(ctx, keys, data, l.ttl); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	l.logger.Debug().Int("count", len(findings)).Str("run_id", findings[0].RunID).Msg("findings recorded")
	l.onRecorded.Emit(ctx, findings)
	return logical, nil
}

// Get returns the finding for request seq of runID.
// datastore.ErrKeyNotFound is returned if it does not exist.
func (l *Ledger) Get(ctx context.Context, runID string, seq uint64) (*Finding, error) {
	key, err := l.findingKey(&Finding{RunID: runID, Sequence: seq})
	if err != nil {
		return nil, err
	}
	data, err := l.ds.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	f := &Finding{}
	if err := l.findings.Unmarshal(data, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (l *Ledger) findingsMatch(runID string) (*keyfactory.Key, error) {
	prefix, err := keyfactory.NewFindingsPrefix(runID)
	if err != nil {
		return nil, err
	}
	return l.kb.Match(prefix, keyfactory.WildcardAnyString)
}

func (l *Ledger) decodeAll(data [][]byte) ([]*Finding, error) {
	out := make([]*Finding, len(data))
	for i, d := range data {
		out[i] = &Finding{}
		if err := l.findings.Unmarshal(d, out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// List returns every finding of runID ordered by sequence.
func (l *Ledger) List(ctx context.Context, runID string) ([]*Finding, error) {
	match, err := l.findingsMatch(runID)
	if err != nil {
		return nil, err
	}
	keys, err := l.ds.ScanKeys(ctx, match)
	if err != nil {
		return nil, err
	}
	data, err := l.ds.GetMulti(ctx, keys)
	if err != nil {
		return nil, err
	}
	findings, err := l.decodeAll(data)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(findings, func(a, b *Finding) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return findings, nil
}

// ListPage returns one page of findings of runID.
//   - The page size is approximate.
//   - A finding may appear on more than one page.
//   - Findings are not ordered across pages.
func (l *Ledger) ListPage(ctx context.Context, runID string, cursor uint64, limit int) (*Page, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	match, err := l.findingsMatch(runID)
	if err != nil {
		return nil, err
	}
	keys, next, err := l.ds.ScanPage(ctx, cursor, limit, match)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return &Page{Cursor: next}, nil
	}
	data, err := l.ds.GetMulti(ctx, keys)
	if err != nil {
		return nil, err
	}
	findings, err := l.decodeAll(data)
	if err != nil {
		return nil, err
	}
	return &Page{Cursor: next, Findings: findings}, nil
}

// CountRequest increments the runID counter for name, typically a result
// kind, and returns the new total.
func (l *Ledger) CountRequest(ctx context.Context, runID string, name string) (int64, error) {
	logical, err := keyfactory.NewCountKey(runID, name)
	if err != nil {
		return 0, err
	}
	key, err := l.kb.Key(logical)
	if err != nil {
		return 0, err
	}
	return l.ds.Incr(ctx, key, 1, l.ttl)
}

// Counts returns every counter of runID by name.
func (l *Ledger) Counts(ctx context.Context, runID string) (map[string]int64, error) {
	prefix, err := keyfactory.NewCountKey(runID, string(keyfactory.WildcardAnyString))
	if err != nil {
		return nil, err
	}
	match, err := l.kb.Key(prefix)
	if err != nil {
		return nil, err
	}
	keys, err := l.ds.ScanKeys(ctx, match)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(keys))
	for _, key := range keys {
		data, err := l.ds.Get(ctx, key)
		if errors.Is(err, datastore.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ledger: counter %q: %w", key, err)
		}
		logical := key.Key()
		counts[logical[strings.LastIndex(logical, ":")+1:]] = n
	}
	return counts, nil
}

func (l *Ledger) runKey(runID string) (*keyfactory.Key, error) {
	logical, err := keyfactory.NewRunKey(runID)
	if err != nil {
		return nil, err
	}
	return l.kb.Key(logical)
}

// PutSummary stores s under its run key.
func (l *Ledger) PutSummary(ctx context.Context, s *RunSummary) error {
	if s == nil {
		return errors.New("ledger: summary must not be nil")
	}
	key, err := l.runKey(s.RunID)
	if err != nil {
		return err
	}
	data, err := l.summaries.Marshal(s)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	return l.ds.Put(ctx, key, data, l.ttl)
}

// GetSummary returns the stored summary of runID.
// datastore.ErrKeyNotFound is returned if none was stored.
func (l *Ledger) GetSummary(ctx context.Context, runID string) (*RunSummary, error) {
	key, err := l.runKey(runID)
	if err != nil {
		return nil, err
	}
	data, err := l.ds.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s := &RunSummary{}
	if err := l.summaries.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return s, nil
}

// DeleteRun removes the summary, findings and counters of runID.
func (l *Ledger) DeleteRun(ctx context.Context, runID string) (int, error) {
	key, err := l.runKey(runID)
	if err != nil {
		return 0, err
	}
	match, err := l.kb.Match(key.Key(), keyfactory.WildcardAnyString)
	if err != nil {
		return 0, err
	}
	n, err := l.ds.DeleteMatch(ctx, match)
	if err != nil {
		return 0, err
	}
	exists, err := l.ds.Exists(ctx, key)
	if err != nil {
		return 0, err
	}
	if exists {
		if err := l.ds.Delete(ctx, key); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Flush deletes every key in the ledger namespace.
func (l *Ledger) Flush(ctx context.Context) (int, error) {
	if l.kb.Namespace() == "" {
		return 0, ErrNoNamespace
	}
	match, err := l.kb.Match("", keyfactory.WildcardAnyString)
	if err != nil {
		return 0, err
	}
	return l.ds.DeleteMatch(ctx, match)
}

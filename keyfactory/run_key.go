package keyfactory

import (
	"fmt"
	"strconv"
	"time"

	"github.com/holmberd/go-protoconform/keyfactory/internal/rediskey"
)

type Kind string

const (
	KindRun     Kind = "run"
	KindFinding Kind = "finding"
	KindCount   Kind = "count"
)

// NewRunID returns a sortable, unique conformance run identifier.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102t150405") + "-" + RandomFragment(6)
}

// NewRunKey returns the logical key of a conformance run.
//
// Key structure:
//
//	run:<runId>
func NewRunKey(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("keyfactory: run ID must not be empty")
	}
	key, err := rediskey.New(string(KindRun), runID)
	if err != nil {
		return "", fmt.Errorf("keyfactory: %w", err)
	}
	return key, nil
}

// NewFindingKey returns the logical key of the finding recorded for request
// seq of a run.
//
// Key structure:
//
//	run:<runId>:finding:<seq>
func NewFindingKey(runID string, seq uint64) (string, error) {
	runKey, err := NewRunKey(runID)
	if err != nil {
		return "", err
	}
	return rediskey.Join(runKey, string(KindFinding), strconv.FormatUint(seq, 10)), nil
}

// NewFindingsPrefix returns the logical key below which a run's findings live.
func NewFindingsPrefix(runID string) (string, error) {
	runKey, err := NewRunKey(runID)
	if err != nil {
		return "", err
	}
	return rediskey.Join(runKey, string(KindFinding)), nil
}

// NewCountKey returns the logical key of a per-run counter.
//
// Key structure:
//
//	run:<runId>:count:<name>
func NewCountKey(runID string, name string) (string, error) {
	runKey, err := NewRunKey(runID)
	if err != nil {
		return "", err
	}
	name, err = rediskey.New(name)
	if err != nil {
		return "", fmt.Errorf("keyfactory: %w", err)
	}
	return rediskey.Join(runKey, string(KindCount), name), nil
}

// ParseFindingKey extracts the run ID and sequence from a finding key.
func ParseFindingKey(key string) (runID string, seq uint64, err error) {
	parts := rediskey.Split(key)
	if len(parts) != 4 || parts[0] != string(KindRun) || parts[2] != string(KindFinding) {
		return "", 0, fmt.Errorf("keyfactory: %q is not a finding key", key)
	}
	seq, err = strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("keyfactory: invalid finding sequence in %q: %w", key, err)
	}
	return parts[1], seq, nil
}

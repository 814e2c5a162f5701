package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/holmberd/go-protoconform/conformance"
	"github.com/holmberd/go-protoconform/datastore"
	"github.com/holmberd/go-protoconform/frame"
	"github.com/holmberd/go-protoconform/ledger"
	"github.com/holmberd/go-protoconform/schema"
	"github.com/holmberd/go-protoconform/testutil"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestStream(t *testing.T, reqs ...*conformance.Request) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, req := range reqs {
		data, err := req.Marshal(nil)
		require.NoError(t, err)
		require.NoError(t, frame.WriteFrame(&buf, data, frame.DefaultLimits()))
	}
	return &buf
}

func countFrames(t *testing.T, r io.Reader) int {
	t.Helper()
	n := 0
	for {
		_, err := frame.ReadFrame(r, frame.DefaultLimits())
		if errors.Is(err, io.EOF) {
			return n
		}
		require.NoError(t, err)
		n++
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testee.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func binaryRequest(payload []byte) *conformance.Request {
	return &conformance.Request{
		MessageType:   string(schema.TestAllTypesProto2),
		PayloadFormat: conformance.WireFormatProtobuf,
		Payload:       payload,
		OutputFormat:  conformance.WireFormatProtobuf,
	}
}

func TestRun(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	ctx := context.Background()

	t.Run("Answers every request", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		stdin := requestStream(t, binaryRequest(nil), binaryRequest([]byte{0x08, 0x01}))
		code := run(ctx, nil, stdin, &stdout, &stderr)
		require.Equal(t, 0, code, stderr.String())
		assert.Equal(t, 2, countFrames(t, &stdout))
		assert.Contains(t, stderr.String(), "conformance run finished", "logs go to stderr")
	})

	t.Run("Protocol error exits non-zero", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		stdin := requestStream(t, &conformance.Request{MessageType: string(schema.TestAllTypesProto2), OutputFormat: conformance.WireFormatProtobuf})
		assert.Equal(t, 1, run(ctx, nil, stdin, &stdout, &stderr))
		assert.Zero(t, stdout.Len())
	})

	t.Run("Bad flag", func(t *testing.T) {
		var stderr bytes.Buffer
		assert.Equal(t, 2, run(ctx, []string{"-nope"}, bytes.NewReader(nil), io.Discard, &stderr))
	})

	t.Run("Bad config", func(t *testing.T) {
		var stderr bytes.Buffer
		path := writeConfig(t, "[log]\nformat = \"xml\"\n")
		assert.Equal(t, 2, run(ctx, []string{"-config", path}, bytes.NewReader(nil), io.Discard, &stderr))
		assert.Contains(t, stderr.String(), "unknown log format")
	})

	t.Run("Unreachable ledger", func(t *testing.T) {
		var stderr bytes.Buffer
		path := writeConfig(t, "[ledger]\nenabled = true\nredis_addr = \"127.0.0.1:1\"\n")
		assert.Equal(t, 1, run(ctx, []string{"-config", path}, bytes.NewReader(nil), io.Discard, &stderr))
	})
}

func TestRunWithLedger(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	rdb, server := testutil.NewRedisClientWithCleanup(t)
	path := writeConfig(t, fmt.Sprintf(`
[log]
format = "json"
level = "debug"

[ledger]
enabled = true
redis_addr = %q
namespace = "ci"
ttl = "1h"
`, server.Addr()))

	var stdout, stderr bytes.Buffer
	stdin := requestStream(t,
		binaryRequest(nil),
		binaryRequest([]byte{0x08, 0x01}),
		binaryRequest([]byte{0x08}),
	)
	code := run(context.Background(), []string{"-config", path, "-run-id", "run1"}, stdin, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, 3, countFrames(t, &stdout))

	ds, err := datastore.NewClient(rdb)
	require.NoError(t, err)
	l, err := ledger.New(ds, "ci")
	require.NoError(t, err)
	ctx := context.Background()

	summary, err := l.GetSummary(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), summary.Requests)
	assert.Equal(t, uint64(2), summary.Results["payload"])
	assert.Equal(t, uint64(1), summary.Results["parse_error"])
	assert.Empty(t, summary.Error)

	counts, err := l.Counts(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"payload": 2, "parse_error": 1}, counts)

	findings, err := l.List(ctx, "run1")
	require.NoError(t, err)
	assert.Empty(t, findings, "parse failures are not divergence findings")
}

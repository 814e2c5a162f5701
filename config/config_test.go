package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestLoad(t *testing.T) {
	t.Run("Defaults without a file", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.ApplyEnv(noEnv))
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, LogFormatConsole, cfg.Log.Format)
		assert.Equal(t, uint32(64*1024*1024), cfg.Limits.MaxPayloadBytes)
		assert.False(t, cfg.Ledger.Enabled)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("File overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
[log]
level = "debug"
format = "JSON"

[limits]
max_payload_bytes = 1024

[decode]
recursion_limit = 64

[ledger]
enabled = true
redis_addr = "redis:6379"
namespace = "ci"
ttl = "1h"
`)
		cfg := Default()
		require.NoError(t, cfg.loadFile(path))
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, LogFormatJSON, cfg.Log.Format)
		assert.Equal(t, uint32(1024), cfg.Limits.MaxPayloadBytes)
		assert.Equal(t, 64, cfg.Decode.RecursionLimit)
		assert.False(t, cfg.Decode.AllowPartial, "undefined keys keep their default")
		assert.True(t, cfg.Ledger.Enabled)
		assert.Equal(t, "redis:6379", cfg.Ledger.RedisAddr)
		assert.Equal(t, "ci", cfg.Ledger.Namespace)
		assert.Equal(t, time.Hour, cfg.Ledger.TTL)
	})

	t.Run("Zero payload limit is allowed", func(t *testing.T) {
		path := writeConfig(t, "[limits]\nmax_payload_bytes = 0\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Zero(t, cfg.Limits.MaxPayloadBytes)
	})

	t.Run("Invalid values", func(t *testing.T) {
		for name, body := range map[string]string{
			"Bad ttl":            "[ledger]\nttl = \"soon\"\n",
			"Negative limit":     "[limits]\nmax_payload_bytes = -1\n",
			"Unknown key":        "[log]\ncolour = true\n",
			"Malformed toml":     "[log\n",
			"Unknown log format": "[log]\nformat = \"xml\"\n",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := Load(writeConfig(t, body))
				assert.Error(t, err)
			})
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:   " warn ",
		EnvLogFormat:  "json",
		EnvLogNoColor: "true",
		EnvRedisAddr:  "10.0.0.1:6379",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, LogFormatJSON, cfg.Log.Format)
	assert.True(t, cfg.Log.NoColor)
	assert.Equal(t, "10.0.0.1:6379", cfg.Ledger.RedisAddr)
	assert.True(t, cfg.Ledger.Enabled, "a redis address enables the ledger")

	env[EnvLogNoColor] = "maybe"
	assert.Error(t, cfg.ApplyEnv(lookup))
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

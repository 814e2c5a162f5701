// Package config loads the conformance testee configuration from a TOML file
// and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	EnvLogLevel   = "PROTOCONFORM_LOG_LEVEL"
	EnvLogFormat  = "PROTOCONFORM_LOG_FORMAT"
	EnvLogNoColor = "PROTOCONFORM_LOG_NOCOLOR"
	EnvRedisAddr  = "PROTOCONFORM_REDIS_ADDR"
)

type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

type Log struct {
	Level   string
	Format  LogFormat
	NoColor bool
}

type Limits struct {
	MaxPayloadBytes uint32
}

type Decode struct {
	RecursionLimit int // Zero keeps the protobuf default.
	AllowPartial   bool
}

type Ledger struct {
	Enabled   bool
	RedisAddr string
	RedisDB   int
	Namespace string
	TTL       time.Duration
}

type Config struct {
	Log    Log
	Limits Limits
	Decode Decode
	Ledger Ledger
}

func Default() Config {
	return Config{
		Log: Log{
			Level:  "info",
			Format: LogFormatConsole,
		},
		Limits: Limits{
			MaxPayloadBytes: 64 * 1024 * 1024,
		},
		Ledger: Ledger{
			RedisAddr: "127.0.0.1:6379",
			Namespace: "protoconform",
			TTL:       7 * 24 * time.Hour,
		},
	}
}

type fileConfig struct {
	Log struct {
		Level   string `toml:"level"`
		Format  string `toml:"format"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`
	Limits struct {
		MaxPayloadBytes int64 `toml:"max_payload_bytes"`
	} `toml:"limits"`
	Decode struct {
		RecursionLimit int  `toml:"recursion_limit"`
		AllowPartial   bool `toml:"allow_partial"`
	} `toml:"decode"`
	Ledger struct {
		Enabled   bool   `toml:"enabled"`
		RedisAddr string `toml:"redis_addr"`
		RedisDB   int    `toml:"redis_db"`
		Namespace string `toml:"namespace"`
		TTL       string `toml:"ttl"`
	} `toml:"ledger"`
}

// Load returns the defaults overridden by the file at path, if any, and then
// by the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}

	if meta.IsDefined("log", "level") {
		c.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		c.Log.Format = LogFormat(strings.ToLower(strings.TrimSpace(raw.Log.Format)))
	}
	if meta.IsDefined("log", "no_color") {
		c.Log.NoColor = raw.Log.NoColor
	}

	if meta.IsDefined("limits", "max_payload_bytes") {
		n := raw.Limits.MaxPayloadBytes
		if n < 0 || n > int64(^uint32(0)) {
			return fmt.Errorf("config: limits.max_payload_bytes out of range: %d", n)
		}
		c.Limits.MaxPayloadBytes = uint32(n)
	}

	if meta.IsDefined("decode", "recursion_limit") {
		c.Decode.RecursionLimit = raw.Decode.RecursionLimit
	}
	if meta.IsDefined("decode", "allow_partial") {
		c.Decode.AllowPartial = raw.Decode.AllowPartial
	}

	if meta.IsDefined("ledger", "enabled") {
		c.Ledger.Enabled = raw.Ledger.Enabled
	}
	if meta.IsDefined("ledger", "redis_addr") {
		c.Ledger.RedisAddr = strings.TrimSpace(raw.Ledger.RedisAddr)
	}
	if meta.IsDefined("ledger", "redis_db") {
		c.Ledger.RedisDB = raw.Ledger.RedisDB
	}
	if meta.IsDefined("ledger", "namespace") {
		c.Ledger.Namespace = strings.TrimSpace(raw.Ledger.Namespace)
	}
	if meta.IsDefined("ledger", "ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Ledger.TTL))
		if err != nil {
			return fmt.Errorf("config: parse ledger.ttl: %w", err)
		}
		c.Ledger.TTL = d
	}
	return nil
}

// ApplyEnv overrides c with the PROTOCONFORM_* variables found by lookup.
// Setting the Redis address also enables the ledger.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.Log.Level = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogFormat); ok && strings.TrimSpace(v) != "" {
		c.Log.Format = LogFormat(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(EnvLogNoColor); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", EnvLogNoColor, err)
		}
		c.Log.NoColor = b
	}
	if v, ok := lookup(EnvRedisAddr); ok && strings.TrimSpace(v) != "" {
		c.Ledger.RedisAddr = strings.TrimSpace(v)
		c.Ledger.Enabled = true
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Log.Format {
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Decode.RecursionLimit < 0 {
		return fmt.Errorf("config: decode.recursion_limit must not be negative")
	}
	if c.Ledger.Enabled && c.Ledger.RedisAddr == "" {
		return fmt.Errorf("config: ledger.redis_addr is required when the ledger is enabled")
	}
	if c.Ledger.TTL < 0 {
		return fmt.Errorf("config: ledger.ttl must not be negative")
	}
	return nil
}

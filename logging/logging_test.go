package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/holmberd/go-protoconform/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
		"trace":   zerolog.TraceLevel,
	} {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	t.Run("JSON format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New("testee", config.Log{Level: "debug", Format: config.LogFormatJSON}, &buf)
		require.NoError(t, err)
		logger.Debug().Int("requests", 3).Msg("done")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "testee", line["app"])
		assert.Equal(t, "debug", line["level"])
		assert.Equal(t, float64(3), line["requests"])
		assert.Contains(t, line, "time")
	})

	t.Run("Console format", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := New("testee", config.Log{Level: "info", Format: config.LogFormatConsole, NoColor: true}, &buf)
		require.NoError(t, err)
		log.Info().Msg("ready")
		assert.Contains(t, buf.String(), "ready", "should install the global logger")
		assert.Contains(t, buf.String(), "INF")
	})

	t.Run("Level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New("testee", config.Log{Level: "warn", Format: config.LogFormatJSON}, &buf)
		require.NoError(t, err)
		logger.Info().Msg("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("Unknown level", func(t *testing.T) {
		_, err := New("testee", config.Log{Level: "loud"}, nil)
		assert.Error(t, err)
	})
}

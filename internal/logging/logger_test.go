package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevLevel := zerolog.GlobalLevel()
	prevLogger := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})
}

func TestInitWriter_Levels(t *testing.T) {
	restoreGlobals(t)

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			InitWriter(&bytes.Buffer{}, tt.in, "console")
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
		})
	}
}

func TestInitWriter_JSONComponent(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	InitWriter(&buf, "debug", "json")

	l := Component("relay")
	l.Info().Str("channel", "workspace-w1").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "relay", line["component"])
	assert.Equal(t, "workspace-w1", line["channel"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestInitWriter_FiltersBelowLevel(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	InitWriter(&buf, "warn", "json")
	log.Info().Msg("dropped")
	assert.Empty(t, buf.String())
}

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"Error", zerolog.ErrorLevel},
		{"FATAL", zerolog.FatalLevel},
		{"  info  ", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "input %q", tt.input)
	}
}

func TestInitLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: zerolog.WarnLevel, Output: &buf})
	defer Init(Config{Level: zerolog.InfoLevel})

	Info().Msg("should be filtered")
	Warn().Msg("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, "should appear")
}

func TestForAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: zerolog.DebugLevel, Output: &buf})
	defer Init(Config{Level: zerolog.InfoLevel})

	log := For("runner")
	log.Info().Msg("hello")

	assert.True(t, strings.Contains(buf.String(), `"component":"runner"`))
}

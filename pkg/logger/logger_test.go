package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_AttachesServiceFields(t *testing.T) {
	t.Cleanup(Reset)
	var buf bytes.Buffer

	Init(Options{Level: "info", Output: &buf, Service: "tenant-portal", Env: "test"})
	l := For("session")
	l.Info().Str("user_id", "usr_1").Msg("login succeeded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tenant-portal", line["service"])
	assert.Equal(t, "test", line["env"])
	assert.Equal(t, "session", line["component"])
	assert.Equal(t, "usr_1", line["user_id"])
	assert.NotContains(t, line, "caller")
}

func TestInit_OnlyFirstCallWins(t *testing.T) {
	t.Cleanup(Reset)
	var first, second bytes.Buffer

	Init(Options{Output: &first})
	Init(Options{Output: &second})
	l := Get()
	l.Info().Msg("hello")

	assert.NotZero(t, first.Len())
	assert.Zero(t, second.Len())
}

func TestGet_PanicsBeforeInit(t *testing.T) {
	Reset()
	assert.Panics(t, func() { Get() })
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestSetup_JSONFiltersByLevel(t *testing.T) {
	prev := L
	t.Cleanup(func() {
		L = prev
		SetLevel("info")
	})

	var buf bytes.Buffer
	Setup(&buf, "json", "warn")

	L.Info("dropped")
	L.Warn("kept", "session", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "kept", rec["msg"])
	require.Equal(t, "abc", rec["session"])
}

func TestSetup_Text(t *testing.T) {
	prev := L
	t.Cleanup(func() {
		L = prev
		SetLevel("info")
	})

	var buf bytes.Buffer
	Setup(&buf, "text", "debug")
	L.Debug("hello", "k", "v")

	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "k=v")
}

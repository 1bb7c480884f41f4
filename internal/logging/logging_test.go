package logging

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
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestJSONHandlerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", FormatJSON)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("broadcast", "txid", "ab12", "op", "release")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "broadcast", rec["msg"])
	require.Equal(t, "release", rec["op"])
}

func TestTextAndUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "debug", FormatText)
	require.NoError(t, err)
	log.Debug("built", "kind", "bond")
	require.Contains(t, buf.String(), "kind=bond")

	_, err = New(&buf, "info", "xml")
	require.Error(t, err)

	OrDiscard(nil).Error("nothing")
}

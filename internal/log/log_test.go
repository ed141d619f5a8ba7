package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	got, ok := ParseLevel("verbose")
	require.False(t, ok)
	require.Equal(t, LevelInfo, got)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	Info("hidden")
	Warn("shown", "owner", "u1")
	Error("failed", errors.New("boom"), "id", 7)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[WARN] shown owner=u1")
	require.Contains(t, out, "[ERROR] failed err=boom id=7")
}

func TestFormatKVsDropsDanglingKey(t *testing.T) {
	require.Equal(t, " a=1", formatKVs("a", 1, "b"))
	require.Equal(t, "", formatKVs(3, "x"))
}

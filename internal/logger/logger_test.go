package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":       slog.LevelInfo,
		"debug":  slog.LevelDebug,
		" WARN ": slog.LevelWarn,
		"error":  slog.LevelError,
		"trace":  slog.LevelInfo,
	}
	for raw, want := range tests {
		require.Equal(t, want, parseLevel(raw), raw)
	}
}

func TestOrDiscard(t *testing.T) {
	require.NotNil(t, OrDiscard(nil))
	log := slog.Default()
	require.Same(t, log, OrDiscard(log))
}

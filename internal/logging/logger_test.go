package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	logger, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	verbose, err := New(Options{Level: "error", Format: "json", Verbose: true})
	require.NoError(t, err)
	assert.True(t, verbose.Core().Enabled(zapcore.DebugLevel))

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestFor_NamesCategory(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	root := zap.New(core)

	For(root, CategoryArxiv).Info("page fetched")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "arxiv", logs.All()[0].LoggerName)
}

func TestFor_NilParent(t *testing.T) {
	assert.NotPanics(t, func() {
		For(nil, CategoryStore).Info("ignored")
	})
}

func TestCategoriesAreUnique(t *testing.T) {
	seen := make(map[Category]bool)
	for _, c := range Categories {
		assert.False(t, seen[c], "duplicate category %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, 8)
}

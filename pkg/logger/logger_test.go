package logger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(
		WithLevel("debug"),
		WithEncoding("console"),
		WithOutputPaths([]string{filepath.Join(dir, "app.log")}),
		func(c *Config) { c.ErrorPaths = []string{filepath.Join(dir, "error.log")} },
	)
	require.NoError(t, err)

	l.Named("pipeline").With(String("k", "v")).Info("hello", Int("n", 1))
	l.Error("boom", Error(errors.New("x")))
	_ = l.Sync()

	assert.FileExists(t, filepath.Join(dir, "app.log"))
	assert.FileExists(t, filepath.Join(dir, "error.log"))
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(WithLevel("loud"), WithOutputPaths([]string{"stdout"}), func(c *Config) { c.ErrorPaths = nil })
	assert.Error(t, err)
}

func TestTestLoggerSharesEntries(t *testing.T) {
	l := NewTestLogger()
	child := l.Named("extract").With(String("file", "a.pdf"))
	child.Warn("failed")
	l.Info("done")

	entries := l.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "extract", entries[0].Logger)
	assert.Len(t, entries[0].Fields, 1)
	assert.Equal(t, 1, l.CountLevel("WARN"))

	l.Clear()
	assert.Empty(t, l.GetEntries())
}

func TestFromContext(t *testing.T) {
	l := NewTestLogger()
	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-1")
	FromContext(ctx, l).Info("hi")

	entries := l.GetEntries()
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Fields, 2)
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Same(t, l, FromContext(context.Background(), l))
}

package utils

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "warn")

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "level=WARN")
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "info").With("run_id", "abc")

	l.Info("hello")
	assert.Contains(t, buf.String(), "run_id=abc")
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0

	err := r.Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	sentinel := errors.New("down")
	r := &RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}

	err := r.Do(context.Background(), "ping", func() error { return sentinel })

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "ping failed after 2 attempts")
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour}

	err := r.Do(ctx, "op", func() error { return errors.New("fail") })

	assert.ErrorIs(t, err, context.Canceled)
}

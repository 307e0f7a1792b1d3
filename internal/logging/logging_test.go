package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

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
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
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

func TestComponent_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelInfo, true)

	Component("engine").Info("push applied", "processed", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "push applied", line["msg"])
	assert.Equal(t, float64(2), line["processed"])
}

func TestComponent_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelWarn, false)

	Component("api").Info("hidden")
	assert.Empty(t, buf.String())

	Component("api").Warn("shown")
	assert.Contains(t, buf.String(), "component=api")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelInfo, false)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))

	WithContext(ctx, Component("api")).Info("handled")
	assert.Contains(t, buf.String(), "request_id=req-42")

	assert.Equal(t, "", RequestID(context.Background()))
}
